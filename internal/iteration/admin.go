package iteration

import (
	"context"
	"fmt"

	"batchcursor/internal/logging"
	"batchcursor/internal/state"
)

// Reset returns the collection's cursor to the start and clears an
// interrupted status. The stored total is kept until the next fresh
// invocation recomputes it.
func (d *Driver) Reset(ctx context.Context, collection string) (state.Record, error) {
	key, err := state.NormalizeKey(collection)
	if err != nil {
		return state.Record{}, inputError("normalize collection", err)
	}
	unlock := d.locks.Lock(key)
	defer unlock()

	if err := d.store.Reset(ctx, key); err != nil {
		return state.Record{}, fmt.Errorf("reset %s: %w", key, err)
	}
	rec, err := d.store.GetOrCreate(ctx, key)
	if err != nil {
		return state.Record{}, fmt.Errorf("load %s: %w", key, err)
	}
	d.logger.Info("collection reset",
		logging.String(logging.FieldCollection, key),
		logging.Int("total", rec.Total),
	)
	return rec, nil
}

// ResetAll drops every record and lane. It waits for invocations in flight
// to finish.
func (d *Driver) ResetAll(ctx context.Context) error {
	unlock := d.locks.LockAll()
	defer unlock()
	if err := d.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	d.logger.Info("all collections reset")
	return nil
}

// Records returns every stored cursor ordered by key.
func (d *Driver) Records(ctx context.Context) ([]state.Record, error) {
	records, err := d.store.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}
