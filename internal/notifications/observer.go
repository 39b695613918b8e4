package notifications

import (
	"context"
	"log/slog"

	"batchcursor/internal/logging"
	"batchcursor/internal/observer"
	"batchcursor/internal/state"
)

// Observer forwards batch completion and interruption events to a Service.
type Observer struct {
	svc    Service
	logger *slog.Logger
}

// NewObserver wraps svc as an observer.Observer.
func NewObserver(svc Service, logger *slog.Logger) *Observer {
	if svc == nil {
		svc = noopService{}
	}
	return &Observer{svc: svc, logger: logging.NewComponentLogger(logger, "notifications")}
}

// Notify implements observer.Observer.
func (o *Observer) Notify(ctx context.Context, evt observer.Event) {
	var err error
	switch {
	case evt.Status == state.StatusInterrupted:
		err = o.svc.NotifySequenceInterrupted(ctx, evt.Collection, evt.Progress, evt.Error)
	case evt.BatchComplete:
		err = o.svc.NotifyBatchCompleted(ctx, evt.Collection, evt.Total, len(evt.Skipped))
	default:
		return
	}
	if err != nil {
		logging.WarnWithContext(o.logger, "notification failed", "notification_failed",
			logging.String(logging.FieldCollection, evt.Collection),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "operator was not alerted"),
		)
	}
}
