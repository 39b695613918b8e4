package pipeline

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/webp"

	"batchcursor/internal/source"
)

// DecodeStep verifies each item is a readable image by decoding its header.
type DecodeStep struct{}

// Process implements Step.
func (DecodeStep) Process(ctx context.Context, item source.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := os.Open(item.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", item.Path, err)
	}
	defer file.Close()

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return fmt.Errorf("decode %s: %w", item.Path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("decode %s: empty %s image", item.Path, format)
	}
	return nil
}
