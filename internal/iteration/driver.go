package iteration

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"batchcursor/internal/logging"
	"batchcursor/internal/observer"
	"batchcursor/internal/pipeline"
	"batchcursor/internal/progress"
	"batchcursor/internal/signal"
	"batchcursor/internal/source"
	"batchcursor/internal/state"
	"batchcursor/internal/tracing"
)

// DefaultLane is used when a request names no lane.
const DefaultLane = "default"

// Driver runs one step of a resumable sequence per Invoke call.
type Driver struct {
	store     state.Store
	source    source.Source
	step      pipeline.Step
	signal    signal.Signal
	observers *observer.Broadcaster
	locks     *state.KeyLocks
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// Option configures a Driver.
type Option func(*Driver)

// WithSignal sets the continuation signal. Defaults to signal.Noop.
func WithSignal(s signal.Signal) Option {
	return func(d *Driver) {
		if s != nil {
			d.signal = s
		}
	}
}

// WithObserver subscribes o to every invocation outcome.
func WithObserver(o observer.Observer) Option {
	return func(d *Driver) {
		d.observers.Subscribe(o)
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTracer sets the tracer used for invocation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Driver) {
		d.tracer = tracer
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// WithIDGenerator overrides invocation ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(d *Driver) {
		if fn != nil {
			d.newID = fn
		}
	}
}

// WithLocks shares a lock table with other writers of the same store.
func WithLocks(locks *state.KeyLocks) Option {
	return func(d *Driver) {
		if locks != nil {
			d.locks = locks
		}
	}
}

// New constructs a Driver.
func New(store state.Store, src source.Source, step pipeline.Step, opts ...Option) *Driver {
	d := &Driver{
		store:     store,
		source:    src,
		step:      step,
		signal:    signal.Noop{},
		observers: observer.NewBroadcaster(),
		locks:     state.NewKeyLocks(),
		now:       time.Now,
		newID:     newInvocationID,
	}
	if d.step == nil {
		d.step = pipeline.Noop
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "iteration")
	return d
}

func newInvocationID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Observers exposes the broadcaster so observers can join after construction.
func (d *Driver) Observers() *observer.Broadcaster {
	return d.observers
}

// Store returns the underlying state store.
func (d *Driver) Store() state.Store {
	return d.store
}

// Locks returns the per-key lock table guarding store mutations.
func (d *Driver) Locks() *state.KeyLocks {
	return d.locks
}

// outcome is what the locked section hands back to Invoke.
type outcome struct {
	result      Result
	notify      bool
	instruction signal.Instruction
}

// Invoke processes the current item of req.Collection and moves the cursor.
//
// Input errors leave the record untouched. Item failures under halt-on-error
// and exhausted skip budgets mark the sequence interrupted and issue no
// continuation signal. Signal delivery failures are logged and reported in
// Result.SignalErr; they never fail the invocation.
func (d *Driver) Invoke(ctx context.Context, req Request) (result Result, err error) {
	started := d.now()
	invocationID := d.newID()
	ctx = logging.WithInvocationID(ctx, invocationID)

	ctx, span := tracing.StartSpan(ctx, d.tracer, "iteration.invoke",
		tracing.AttrCollection.String(req.Collection),
		tracing.AttrLane.String(req.Lane),
	)
	defer func() {
		tracing.EndSpan(span, err,
			tracing.AttrOffset.Int(result.Offset),
			tracing.AttrTotal.Int(result.Total),
			tracing.AttrStatus.String(string(result.Status)),
			tracing.AttrSkipped.Int(len(result.Skipped)),
			attribute.String("batchcursor.error_kind", Kind(err)),
		)
	}()

	req, err = req.normalized()
	if err != nil {
		return Result{InvocationID: invocationID}, inputError("invoke", err)
	}
	if req.Lane == "" {
		req.Lane = DefaultLane
	}
	key, err := state.NormalizeKey(req.Collection)
	if err != nil {
		return Result{InvocationID: invocationID}, inputError("normalize collection", err)
	}
	ctx = logging.WithCollection(ctx, key)
	ctx = logging.WithLane(ctx, req.Lane)
	logger := logging.WithContext(ctx, d.logger)

	unlock := d.locks.Lock(key)
	out, err := d.runLocked(ctx, key, req, logger)
	unlock()

	out.result.Collection = key
	out.result.InvocationID = invocationID
	out.result.Elapsed = d.now().Sub(started)
	if out.result.Item != nil {
		span.SetAttributes(tracing.AttrItemID.String(out.result.Item.ID))
	}

	if out.notify {
		d.observers.Notify(ctx, d.event(req.Lane, out.result, err))
	}
	if err != nil {
		return out.result, err
	}

	out.result.Signal = out.instruction
	if sigErr := signal.Send(ctx, d.signal, out.instruction, req.Token); sigErr != nil {
		out.result.SignalErr = sigErr
		out.result.SignalError = sigErr.Error()
		logging.WarnWithContext(logger, "continuation signal failed", "signal_failed",
			logging.String("instruction", string(out.instruction)),
			logging.Error(sigErr),
			logging.String(logging.FieldErrorHint, "check scheduler.base_url and that the scheduler is reachable"),
			logging.String(logging.FieldImpact, "state was committed; the scheduler may not re-invoke automatically"),
		)
	}
	return out.result, nil
}

// runLocked performs every store mutation of an invocation. The caller holds
// the key lock.
func (d *Driver) runLocked(ctx context.Context, key string, req Request, logger *slog.Logger) (outcome, error) {
	var out outcome

	items, err := d.source.Resolve(ctx, key)
	if err != nil {
		return out, inputError("resolve collection", err)
	}
	if len(items) == 0 {
		return out, inputError("resolve collection", fmt.Errorf("%s: %w", key, ErrEmptyCollection))
	}

	changed, err := d.store.DetectCollectionChange(ctx, req.Lane, key)
	if err != nil {
		return out, fmt.Errorf("detect collection change: %w", err)
	}
	if changed {
		logger.Info("collection changed; starting over",
			logging.String(logging.FieldEventType, "collection_changed"))
		if err := d.store.Reset(ctx, key); err != nil {
			return out, fmt.Errorf("reset record: %w", err)
		}
	}
	if req.Mode == ModeReset && !changed {
		logger.Debug("reset requested")
		if err := d.store.Reset(ctx, key); err != nil {
			return out, fmt.Errorf("reset record: %w", err)
		}
	}

	rec, err := d.store.GetOrCreate(ctx, key)
	if err != nil {
		return out, fmt.Errorf("load record: %w", err)
	}
	if rec.Status.Terminal() {
		out.result = resultFromRecord(rec)
		return out, fmt.Errorf("%s: %w", key, ErrSequenceInterrupted)
	}

	rec, err = d.reconcile(ctx, rec, len(items), req.StartOffset, logger)
	if err != nil {
		return out, err
	}
	total := rec.Total
	if total > len(items) {
		total = len(items)
	}

	logger.Debug("processing item", logging.Args(logging.Cursor(key, req.Lane, rec.Offset, total)...)...)
	res := d.walk(ctx, req.FailurePolicy, items, rec.Offset, total, logger)
	if res.canceled != nil {
		return out, fmt.Errorf("process item: %w", res.canceled)
	}

	if len(res.skipped) > 0 && res.offset != rec.Offset {
		if err := d.store.Seek(ctx, key, res.offset); err != nil {
			return out, fmt.Errorf("move past skipped items: %w", err)
		}
	}

	out.notify = true
	out.result = Result{
		Offset:  res.offset,
		Total:   total,
		Skipped: res.skipped,
	}

	if res.err != nil {
		if err := d.store.SetStatus(ctx, key, state.StatusInterrupted); err != nil {
			return out, fmt.Errorf("mark interrupted: %w", err)
		}
		out.result.Status = state.StatusInterrupted
		out.result.Progress = progress.Text(out.result.Offset, total)
		logging.ErrorWithContext(logger, "sequence interrupted", "sequence_interrupted",
			logging.String("error_kind", Kind(res.err)),
			logging.Error(res.err),
			logging.Int(logging.FieldOffset, out.result.Offset),
			logging.String(logging.FieldErrorHint, "fix the failing item, then invoke with mode=reset"),
		)
		return out, res.err
	}

	out.result.Item = res.item
	out.result.BaseName = res.item.BaseName()
	out.result.Format = res.item.Format()
	out.result.DirName = res.item.DirName()
	out.result.BatchComplete = res.offset >= total-1

	if out.result.BatchComplete {
		if err := d.store.Wrap(ctx, key); err != nil {
			return out, fmt.Errorf("wrap record: %w", err)
		}
		if err := d.store.SetStatus(ctx, key, state.StatusCompleted); err != nil {
			return out, fmt.Errorf("mark completed: %w", err)
		}
		out.result.Status = state.StatusCompleted
		out.instruction = signal.Halt
	} else {
		if err := d.store.Advance(ctx, key); err != nil {
			return out, fmt.Errorf("advance record: %w", err)
		}
		if err := d.store.SetStatus(ctx, key, state.StatusInProgress); err != nil {
			return out, fmt.Errorf("mark in progress: %w", err)
		}
		out.result.Status = state.StatusInProgress
		out.instruction = signal.Continue
	}
	out.result.Progress = progress.Text(out.result.Offset, total)
	return out, nil
}

// reconcile applies the snapshot size and any explicit start offset to rec.
func (d *Driver) reconcile(ctx context.Context, rec state.Record, size int, start *int, logger *slog.Logger) (state.Record, error) {
	fresh := rec.Offset == 0 && rec.Status == state.StatusIdle

	switch {
	case rec.Offset == 0:
		if err := d.store.SetTotal(ctx, rec.Key, size); err != nil {
			return rec, fmt.Errorf("set total: %w", err)
		}
		rec.Total = size
	case rec.Offset >= size:
		logging.WarnWithContext(logger, "stored offset beyond collection; starting over", "offset_wrapped",
			logging.Int(logging.FieldOffset, rec.Offset),
			logging.Int("size", size),
			logging.String(logging.FieldErrorHint, "the collection shrank since the last invocation"),
			logging.String(logging.FieldImpact, "sequence restarts from the first item"),
		)
		if err := d.store.Wrap(ctx, rec.Key); err != nil {
			return rec, fmt.Errorf("wrap record: %w", err)
		}
		if err := d.store.SetTotal(ctx, rec.Key, size); err != nil {
			return rec, fmt.Errorf("set total: %w", err)
		}
		rec.Offset = 0
		rec.Total = size
	}

	if start == nil || *start == 0 || !fresh {
		return rec, nil
	}
	if *start >= rec.Total {
		logging.WarnWithContext(logger, "start offset beyond collection; ignoring", "start_offset_ignored",
			logging.Int("start_offset", *start),
			logging.Int(logging.FieldTotal, rec.Total),
			logging.String(logging.FieldErrorHint, "pass a start offset below the collection size"),
			logging.String(logging.FieldImpact, "sequence starts from the first item"),
		)
		return rec, nil
	}
	if err := d.store.Seek(ctx, rec.Key, *start); err != nil {
		return rec, fmt.Errorf("seek to start offset: %w", err)
	}
	rec.Offset = *start
	logger.Info("starting at requested offset", logging.Int(logging.FieldOffset, *start))
	return rec, nil
}

func resultFromRecord(rec state.Record) Result {
	offset := rec.Offset
	if rec.Total > 0 && offset >= rec.Total {
		offset = rec.Total - 1
	}
	return Result{
		Offset: offset,
		Total:  rec.Total,
		Status: rec.Status,
	}
}

func (d *Driver) event(lane string, res Result, err error) observer.Event {
	evt := observer.Event{
		Collection:    res.Collection,
		Lane:          lane,
		Offset:        res.Offset,
		Total:         res.Total,
		Status:        res.Status,
		BatchComplete: res.BatchComplete,
		Progress:      res.Progress,
		Elapsed:       res.Elapsed,
		InvocationID:  res.InvocationID,
		Time:          d.now().UTC(),
	}
	if res.Item != nil {
		evt.ItemID = res.Item.ID
	}
	for _, s := range res.Skipped {
		evt.Skipped = append(evt.Skipped, s.ItemID)
	}
	if err != nil {
		evt.Error = err.Error()
	}
	return evt
}

// IsInterrupted reports whether err means the sequence needs a reset.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrSequenceInterrupted)
}
