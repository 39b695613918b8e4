package signal

import (
	"context"
	"errors"
	"fmt"
)

// Instruction is the decision sent to the control plane.
type Instruction string

const (
	// None means no instruction was issued (interrupted invocations).
	None     Instruction = ""
	Continue Instruction = "continue"
	Halt     Instruction = "halt"
)

// Signal delivers continuation instructions. token identifies the run the
// instruction belongs to and may be empty.
type Signal interface {
	Continue(ctx context.Context, token string) error
	Halt(ctx context.Context, token string) error
}

// Send dispatches instruction through s.
func Send(ctx context.Context, s Signal, instruction Instruction, token string) error {
	if s == nil {
		return nil
	}
	switch instruction {
	case Continue:
		return s.Continue(ctx, token)
	case Halt:
		return s.Halt(ctx, token)
	case None:
		return nil
	default:
		return fmt.Errorf("unknown instruction %q", instruction)
	}
}

// Noop discards every instruction.
type Noop struct{}

func (Noop) Continue(context.Context, string) error { return nil }
func (Noop) Halt(context.Context, string) error     { return nil }

// Multi fans an instruction out to every signal, joining their errors.
type Multi []Signal

// Continue implements Signal.
func (m Multi) Continue(ctx context.Context, token string) error {
	return m.each(func(s Signal) error { return s.Continue(ctx, token) })
}

// Halt implements Signal.
func (m Multi) Halt(ctx context.Context, token string) error {
	return m.each(func(s Signal) error { return s.Halt(ctx, token) })
}

func (m Multi) each(fn func(Signal) error) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
