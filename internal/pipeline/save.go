package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"batchcursor/internal/source"
)

// OverwriteMode decides what happens when the output file already exists.
type OverwriteMode string

const (
	Overwrite OverwriteMode = "overwrite"
	Skip      OverwriteMode = "skip"
	Rename    OverwriteMode = "rename"
)

const (
	maxRenameAttempts = 10000
	maxJPEGQuality    = 95
)

// SaveOptions configures SaveStep.
type SaveOptions struct {
	// OutputRoot anchors relative directories and the per-collection default.
	OutputRoot string
	// Directory is used as is when absolute and joined onto OutputRoot when
	// relative. Empty selects OutputRoot/<source directory name>.
	Directory string
	// Format is "match", "png" or "jpg".
	Format    string
	Quality   int
	Prefix    string
	Suffix    string
	Overwrite OverwriteMode
}

// SaveStep decodes each item and writes it to the output directory as
// {prefix}{base name}{suffix}.{ext}.
type SaveStep struct {
	opts SaveOptions
}

// NewSaveStep validates opts.
func NewSaveStep(opts SaveOptions) (*SaveStep, error) {
	if strings.TrimSpace(opts.OutputRoot) == "" && !filepath.IsAbs(opts.Directory) {
		return nil, errors.New("save step requires an output root or an absolute directory")
	}
	switch opts.Format {
	case "":
		opts.Format = "match"
	case "match", "png", "jpg":
	case "jpeg":
		opts.Format = "jpg"
	default:
		return nil, fmt.Errorf("unsupported save format %q", opts.Format)
	}
	switch opts.Overwrite {
	case "":
		opts.Overwrite = Overwrite
	case Overwrite, Skip, Rename:
	default:
		return nil, fmt.Errorf("unknown overwrite mode %q", opts.Overwrite)
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 100
	}
	return &SaveStep{opts: opts}, nil
}

// Process implements Step.
func (s *SaveStep) Process(ctx context.Context, item source.Item) error {
	_, err := s.Save(ctx, item)
	return err
}

// Save writes item and returns the path written. The path is empty when the
// target exists and the overwrite mode is Skip.
func (s *SaveStep) Save(ctx context.Context, item source.Item) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	img, err := decodeImage(item.Path)
	if err != nil {
		return "", err
	}

	dir := s.outputDir(item)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	ext := s.extension(item)
	target, ok, err := s.resolveTarget(filepath.Join(dir, s.opts.Prefix+item.BaseName()+s.opts.Suffix+"."+ext))
	if err != nil || !ok {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.write(target, ext, img); err != nil {
		return "", err
	}
	return target, nil
}

func (s *SaveStep) outputDir(item source.Item) string {
	switch {
	case s.opts.Directory == "":
		return filepath.Join(s.opts.OutputRoot, item.DirName())
	case filepath.IsAbs(s.opts.Directory):
		return s.opts.Directory
	default:
		return filepath.Join(s.opts.OutputRoot, s.opts.Directory)
	}
}

// extension maps the configured format to an encodable extension. Sources
// without an encoder here (webp) are written as png.
func (s *SaveStep) extension(item source.Item) string {
	format := s.opts.Format
	if format == "match" {
		format = item.Format()
	}
	switch format {
	case "jpg", "jpeg":
		return "jpg"
	case "gif":
		return "gif"
	default:
		return "png"
	}
}

func (s *SaveStep) resolveTarget(path string) (string, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return path, true, nil
	} else if err != nil {
		return "", false, fmt.Errorf("stat %s: %w", path, err)
	}
	switch s.opts.Overwrite {
	case Skip:
		return "", false, nil
	case Rename:
		ext := filepath.Ext(path)
		base := strings.TrimSuffix(path, ext)
		for n := 1; n <= maxRenameAttempts; n++ {
			candidate := fmt.Sprintf("%s_%d%s", base, n, ext)
			if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
				return candidate, true, nil
			}
		}
		return "", false, fmt.Errorf("no free name for %s after %d attempts", path, maxRenameAttempts)
	default:
		return path, true, nil
	}
}

// write encodes into a temp file beside target and renames it into place.
func (s *SaveStep) write(target, ext string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".batchcursor-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	switch ext {
	case "jpg":
		err = jpeg.Encode(tmp, img, &jpeg.Options{Quality: min(s.opts.Quality, maxJPEGQuality)})
	case "gif":
		err = gif.Encode(tmp, img, nil)
	default:
		err = png.Encode(tmp, img)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("move into place: %w", err)
	}
	return nil
}

func decodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
