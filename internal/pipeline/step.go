package pipeline

import (
	"context"
	"fmt"

	"batchcursor/internal/config"
	"batchcursor/internal/source"
)

// Step processes one item.
type Step interface {
	Process(ctx context.Context, item source.Item) error
}

// StepFunc adapts a function into a Step.
type StepFunc func(ctx context.Context, item source.Item) error

// Process implements Step.
func (f StepFunc) Process(ctx context.Context, item source.Item) error {
	return f(ctx, item)
}

// Noop accepts every item.
var Noop Step = StepFunc(func(context.Context, source.Item) error { return nil })

// New builds the step named in cfg.Iteration.Step.
func New(cfg *config.Config) (Step, error) {
	switch cfg.Iteration.Step {
	case "", "decode":
		return DecodeStep{}, nil
	case "exec":
		return NewExecStep(cfg.Iteration.ExecCommand)
	case "save":
		return NewSaveStep(SaveOptions{
			OutputRoot: cfg.Save.OutputRoot,
			Directory:  cfg.Save.Directory,
			Format:     cfg.Save.Format,
			Quality:    cfg.Save.Quality,
			Prefix:     cfg.Save.Prefix,
			Suffix:     cfg.Save.Suffix,
			Overwrite:  OverwriteMode(cfg.Save.Overwrite),
		})
	default:
		return nil, fmt.Errorf("unknown pipeline step %q", cfg.Iteration.Step)
	}
}
