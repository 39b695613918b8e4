package observer

import (
	"context"
	"log/slog"
	"sync"

	"batchcursor/internal/logging"
	"batchcursor/internal/progress"
	"batchcursor/internal/state"
)

// LogObserver writes progress lines. Mid-batch events are sampled by percent
// bucket so large collections do not flood the log; completions and
// interruptions are always written.
type LogObserver struct {
	logger  *slog.Logger
	mu      sync.Mutex
	sampler *logging.ProgressSampler
}

// NewLogObserver logs through logger under the "progress" component.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{
		logger:  logging.NewComponentLogger(logger, "progress"),
		sampler: logging.NewProgressSampler(10),
	}
}

// Notify implements Observer.
func (o *LogObserver) Notify(ctx context.Context, evt Event) {
	attrs := logging.Cursor(evt.Collection, evt.Lane, evt.Offset, evt.Total)
	attrs = append(attrs,
		logging.String(logging.FieldStatus, string(evt.Status)),
		logging.String(logging.FieldInvocationID, evt.InvocationID),
		logging.Duration("elapsed", evt.Elapsed),
	)
	if evt.ItemID != "" {
		attrs = append(attrs, logging.String(logging.FieldItemID, evt.ItemID))
	}
	if len(evt.Skipped) > 0 {
		attrs = append(attrs, logging.Int("skipped", len(evt.Skipped)))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case evt.Status == state.StatusInterrupted:
		attrs = append(attrs, logging.String("reason", evt.Error))
		logging.WarnWithContext(o.logger, "sequence interrupted", "sequence_interrupted",
			append(attrs,
				logging.String(logging.FieldErrorHint, "fix the failing item or switch to skip-on-error, then reset"),
				logging.String(logging.FieldImpact, "no further items will be processed until reset"),
			)...)
		o.sampler.Reset()
	case evt.BatchComplete:
		o.logger.InfoContext(ctx, "batch complete", logging.Args(attrs...)...)
		o.sampler.Reset()
	default:
		percent := progress.Percent(evt.Offset, evt.Total)
		if o.sampler.ShouldLog(percent, evt.Collection+"\x00"+evt.Lane) {
			o.logger.InfoContext(ctx, progress.Text(evt.Offset, evt.Total), logging.Args(attrs...)...)
			return
		}
		o.logger.DebugContext(ctx, progress.Text(evt.Offset, evt.Total), logging.Args(attrs...)...)
	}
}
