package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"batchcursor/internal/iteration"
	"batchcursor/internal/logging"
	"batchcursor/internal/signal"
)

// ErrInvocationLimit is returned when Loop stops because it reached its
// configured maximum before the batch completed.
var ErrInvocationLimit = errors.New("invocation limit reached")

// Summary describes a finished loop.
type Summary struct {
	Token       string            `json:"token"`
	Invocations int               `json:"invocations"`
	Processed   int               `json:"processed"`
	Skipped     int               `json:"skipped"`
	Completed   bool              `json:"completed"`
	Last        *iteration.Result `json:"last,omitempty"`
	Elapsed     time.Duration     `json:"elapsed_ns"`
}

// Loop re-invokes the driver until it signals halt, fails, or ctx ends.
type Loop struct {
	invoker        Invoker
	signals        <-chan signal.Delivery
	limiter        *rate.Limiter
	logger         *slog.Logger
	maxInvocations int
	onResult       func(iteration.Result)
	now            func() time.Time
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithRate paces invocations. Zero disables pacing.
func WithRate(perSecond float64) LoopOption {
	return func(l *Loop) { l.limiter = NewLimiter(perSecond) }
}

// WithMaxInvocations stops the loop after n invocations. Zero means no limit.
func WithMaxInvocations(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxInvocations = n
		}
	}
}

// WithResultHook is called after every successful invocation.
func WithResultHook(fn func(iteration.Result)) LoopOption {
	return func(l *Loop) { l.onResult = fn }
}

// WithLoopLogger sets the logger.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoop builds a loop reading instructions from local. The invoker must
// deliver its continuation signals to local.
func NewLoop(invoker Invoker, local *signal.LocalSignal, opts ...LoopOption) *Loop {
	l := &Loop{
		invoker: invoker,
		limiter: NewLimiter(0),
		now:     time.Now,
	}
	if local != nil {
		l.signals = local.C()
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.NewComponentLogger(l.logger, "scheduler")
	return l
}

// Run invokes req, then keeps invoking in continue mode while the driver
// signals continue. The first invocation honours req.Mode and
// req.StartOffset.
func (l *Loop) Run(ctx context.Context, req iteration.Request) (Summary, error) {
	if req.Token == "" {
		req.Token = uuid.NewString()
	}
	started := l.now()
	summary := Summary{Token: req.Token}
	logger := l.logger.With(logging.String("token", req.Token))

	for {
		if l.maxInvocations > 0 && summary.Invocations >= l.maxInvocations {
			summary.Elapsed = l.now().Sub(started)
			return summary, fmt.Errorf("%w after %d invocations", ErrInvocationLimit, summary.Invocations)
		}

		res, err := l.invoker.Invoke(ctx, req)
		summary.Invocations++
		summary.Skipped += len(res.Skipped)
		if err != nil {
			summary.Last = &res
			summary.Elapsed = l.now().Sub(started)
			return summary, err
		}
		if res.Item != nil {
			summary.Processed++
		}
		summary.Last = &res
		if l.onResult != nil {
			l.onResult(res)
		}

		instruction := l.instruction(res)
		if instruction != signal.Continue {
			summary.Completed = res.BatchComplete
			summary.Elapsed = l.now().Sub(started)
			logger.Info("loop finished",
				logging.Int("invocations", summary.Invocations),
				logging.Int("processed", summary.Processed),
				logging.Int("skipped", summary.Skipped),
				logging.Duration("elapsed", summary.Elapsed),
			)
			return summary, nil
		}

		if err := l.limiter.Wait(ctx); err != nil {
			summary.Elapsed = l.now().Sub(started)
			return summary, fmt.Errorf("wait for next invocation: %w", err)
		}
		req = continuation(req)
	}
}

// instruction prefers the locally delivered signal; signal delivery is
// synchronous, so anything sent during Invoke is already buffered.
func (l *Loop) instruction(res iteration.Result) signal.Instruction {
	for {
		select {
		case d := <-l.signals:
			// Drain to the newest delivery so stale instructions never steer the loop.
			if len(l.signals) > 0 {
				continue
			}
			return d.Instruction
		default:
			return res.Signal
		}
	}
}
