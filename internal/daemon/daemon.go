package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"batchcursor/internal/config"
	"batchcursor/internal/engine"
	"batchcursor/internal/iteration"
	"batchcursor/internal/logging"
	"batchcursor/internal/observer"
	"batchcursor/internal/scheduler"
	"batchcursor/internal/state"
)

// Daemon serves the iteration engine over HTTP and enforces single-instance
// execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *engine.Engine
	jobs   *scheduler.Jobs
	logHub *logging.StreamHub
	events *observer.WebSocketHub

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running             bool
	PID                 int
	LockFilePath        string
	APIAddress          string
	StateBackend        string
	Step                string
	SchedulerConfigured bool
	TracingEnabled      bool
	EventClients        int
	ActiveLocks         int
	Jobs                map[scheduler.JobState]int
	Latency             observer.LatencyStats
}

// Option customizes optional daemon collaborators.
type Option func(*Daemon)

// WithLogStream exposes hub through the /api/logs endpoint.
func WithLogStream(hub *logging.StreamHub) Option {
	return func(d *Daemon) { d.logHub = hub }
}

// WithEventHub serves websocket progress events from hub.
func WithEventHub(hub *observer.WebSocketHub) Option {
	return func(d *Daemon) { d.events = hub }
}

// New constructs a daemon around an engine and the job table bound to it.
func New(cfg *config.Config, eng *engine.Engine, jobs *scheduler.Jobs, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || eng == nil || jobs == nil || logger == nil {
		return nil, errors.New("daemon requires config, engine, jobs, and logger")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		engine:   eng,
		jobs:     jobs,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another batchcursor daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("batchcursor daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.APIAddress()),
	)
	return nil
}

// Stop stops serving and releases the daemon lock. Scheduled jobs keep their
// state until Close.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
			logging.String(logging.FieldImpact, "next daemon start may be refused"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("batchcursor daemon stopped")
}

// Close stops the daemon, waits for in-flight jobs, and releases the engine.
func (d *Daemon) Close() error {
	d.Stop()
	d.jobs.Close()
	if d.events != nil {
		d.events.Close()
	}
	return d.engine.Close(context.Background())
}

// APIAddress returns the bound API address, or the configured bind while
// stopped.
func (d *Daemon) APIAddress() string {
	if addr := d.api.address(); addr != "" {
		return addr
	}
	return d.cfg.Paths.APIBind
}

// Invoke runs one driver invocation with configured request defaults.
func (d *Daemon) Invoke(ctx context.Context, req iteration.Request) (iteration.Result, error) {
	return d.engine.Invoke(ctx, engine.DefaultRequest(d.cfg, req))
}

// SubmitJob schedules a sequence that keeps invoking until it halts.
func (d *Daemon) SubmitJob(req iteration.Request) (scheduler.Job, error) {
	return d.jobs.Submit(engine.DefaultRequest(d.cfg, req))
}

// Jobs returns every retained job, newest first.
func (d *Daemon) Jobs() []scheduler.Job {
	return d.jobs.List()
}

// Job returns the job with token.
func (d *Daemon) Job(token string) (scheduler.Job, bool) {
	return d.jobs.Get(token)
}

// CancelJob stops scheduling further invocations for token.
func (d *Daemon) CancelJob(token string) (scheduler.Job, error) {
	return d.jobs.Cancel(token)
}

// Continue forwards an external continue instruction to the job table.
func (d *Daemon) Continue(ctx context.Context, token string) error {
	return d.jobs.Continue(ctx, token)
}

// Halt forwards an external halt instruction to the job table.
func (d *Daemon) Halt(ctx context.Context, token string) error {
	return d.jobs.Halt(ctx, token)
}

// Records lists stored cursors.
func (d *Daemon) Records(ctx context.Context) ([]state.Record, error) {
	return d.engine.Driver.Records(ctx)
}

// Reset returns one collection to its first item.
func (d *Daemon) Reset(ctx context.Context, collection string) (state.Record, error) {
	return d.engine.Driver.Reset(ctx, collection)
}

// ResetAll drops every stored cursor.
func (d *Daemon) ResetAll(ctx context.Context) error {
	return d.engine.Driver.ResetAll(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.engine.Notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogStream returns the in-memory log hub, if configured.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) Status {
	status := Status{
		Running:             d.running.Load(),
		PID:                 os.Getpid(),
		LockFilePath:        d.lockPath,
		APIAddress:          d.APIAddress(),
		StateBackend:        d.cfg.Iteration.StateBackend,
		Step:                d.cfg.Iteration.Step,
		SchedulerConfigured: d.engine.HTTPSignal != nil,
		TracingEnabled:      d.engine.Tracing.Enabled(),
		ActiveLocks:         d.engine.Driver.Locks().Len(),
		Jobs:                d.jobs.Counts(),
		Latency:             d.engine.Latency.Snapshot(),
	}
	if d.events != nil {
		status.EventClients = d.events.Clients()
	}
	return status
}
