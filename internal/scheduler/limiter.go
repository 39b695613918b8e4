package scheduler

import (
	"context"

	"golang.org/x/time/rate"

	"batchcursor/internal/iteration"
)

// Invoker runs one driver invocation.
type Invoker interface {
	Invoke(ctx context.Context, req iteration.Request) (iteration.Result, error)
}

// NewLimiter converts invocations per second into a limiter. Zero or
// negative rates disable pacing.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// continuation returns the request used for every invocation after the first.
func continuation(req iteration.Request) iteration.Request {
	next := req
	next.Mode = iteration.ModeContinue
	next.StartOffset = nil
	return next
}
