package signal

import "context"

// Delivery is an instruction received by LocalSignal.
type Delivery struct {
	Instruction Instruction
	Token       string
}

// LocalSignal hands instructions to an in-process consumer over a channel.
type LocalSignal struct {
	ch chan Delivery
}

// NewLocalSignal returns a signal with the given channel buffer.
func NewLocalSignal(buffer int) *LocalSignal {
	if buffer < 1 {
		buffer = 1
	}
	return &LocalSignal{ch: make(chan Delivery, buffer)}
}

// C returns the delivery channel.
func (s *LocalSignal) C() <-chan Delivery {
	return s.ch
}

// Continue implements Signal.
func (s *LocalSignal) Continue(ctx context.Context, token string) error {
	return s.deliver(ctx, Delivery{Instruction: Continue, Token: token})
}

// Halt implements Signal.
func (s *LocalSignal) Halt(ctx context.Context, token string) error {
	return s.deliver(ctx, Delivery{Instruction: Halt, Token: token})
}

func (s *LocalSignal) deliver(ctx context.Context, d Delivery) error {
	select {
	case s.ch <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
