package iteration

import (
	"context"
	"fmt"
	"log/slog"

	"batchcursor/internal/logging"
	"batchcursor/internal/source"
)

// attempt is the outcome of walking candidates from a starting offset.
type attempt struct {
	// offset is the index of the processed item, or of the candidate that
	// stopped the walk.
	offset int
	item   *source.Item
	// skipped lists the candidates passed over, in order.
	skipped []SkippedItem
	// err is an *ItemError (halt-on-error) or wraps ErrSkipBudgetExhausted.
	err error
	// canceled holds the context error when the step was aborted.
	canceled error
}

// walk processes items[offset] and, under skip-on-error, the candidates after
// it until one succeeds. Candidates wrap past the last index to the first.
// Within one invocation it makes at most total attempts, so a collection
// where every item fails reports exhaustion.
func (d *Driver) walk(ctx context.Context, policy FailurePolicy, items []source.Item, offset, total int, logger *slog.Logger) attempt {
	res := attempt{offset: offset}
	var lastErr error
	for attempts := 0; ; attempts++ {
		if attempts >= total {
			res.err = fmt.Errorf("%w after %d attempts: %w", ErrSkipBudgetExhausted, attempts, lastErr)
			return res
		}
		item := items[res.offset]
		err := d.step.Process(ctx, item)
		if err == nil {
			res.item = &item
			return res
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.canceled = ctxErr
			return res
		}

		itemErr := &ItemError{Offset: res.offset, ItemID: item.ID, Err: err}
		if policy != SkipOnError {
			res.err = itemErr
			return res
		}

		logging.WarnWithContext(logger, "item skipped", "item_skipped",
			logging.String(logging.FieldItemID, item.ID),
			logging.Int(logging.FieldOffset, res.offset),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the item or remove it from the collection"),
			logging.String(logging.FieldImpact, "item left unprocessed; continuing with the next item"),
		)
		res.skipped = append(res.skipped, SkippedItem{
			Offset: res.offset,
			ItemID: item.ID,
			Reason: err.Error(),
		})
		lastErr = itemErr
		res.offset = (res.offset + 1) % total
	}
}
