package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"batchcursor/internal/source"
)

const placeholder = "{}"

// ExecStep runs an external command per item. Every "{}" argument token is
// replaced with the item path; when no token contains "{}" the path is
// appended as the final argument.
type ExecStep struct {
	args []string
}

// NewExecStep parses a whitespace-separated command line.
func NewExecStep(command string) (*ExecStep, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, errors.New("exec step requires a command")
	}
	return &ExecStep{args: args}, nil
}

func (s *ExecStep) argv(path string) []string {
	out := make([]string, 0, len(s.args)+1)
	substituted := false
	for _, arg := range s.args {
		if strings.Contains(arg, placeholder) {
			arg = strings.ReplaceAll(arg, placeholder, path)
			substituted = true
		}
		out = append(out, arg)
	}
	if !substituted {
		out = append(out, path)
	}
	return out
}

// Process implements Step.
func (s *ExecStep) Process(ctx context.Context, item source.Item) error {
	argv := s.argv(item.Path)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 512 {
			detail = detail[:512]
		}
		if detail != "" {
			return fmt.Errorf("%s: %w: %s", argv[0], err, detail)
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}
