// Package engine assembles an iteration driver and its collaborators from
// configuration. The CLI and the daemon both build their driver here so the
// state backend, item source, pipeline step, continuation signals, observers,
// and tracing are wired identically.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"batchcursor/internal/config"
	"batchcursor/internal/iteration"
	"batchcursor/internal/logging"
	"batchcursor/internal/notifications"
	"batchcursor/internal/observer"
	"batchcursor/internal/pipeline"
	"batchcursor/internal/signal"
	"batchcursor/internal/source"
	"batchcursor/internal/state"
	"batchcursor/internal/tracing"
)

// Options supplements what configuration describes.
type Options struct {
	Logger *slog.Logger
	// Signals receive continuation instructions alongside the configured
	// HTTP scheduler.
	Signals []signal.Signal
	// Observers are subscribed after the built-in ones.
	Observers []observer.Observer
	// Source and Step override the configured implementations.
	Source source.Source
	Step   pipeline.Step
	// Notifier overrides the ntfy service built from configuration.
	Notifier notifications.Service
}

// Engine owns a driver and the resources it depends on.
type Engine struct {
	Driver   *iteration.Driver
	Store    state.Store
	logger   *slog.Logger
	Latency  *observer.LatencyRecorder
	Tracing  *tracing.Provider
	Notifier notifications.Service
	// HTTPSignal is nil unless scheduler.base_url is configured.
	HTTPSignal *signal.HTTPSignal
}

// Build constructs an Engine from cfg.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	src := opts.Source
	if src == nil {
		auto, err := source.NewAutoSource(cfg.Iteration.FilterPreset, cfg.Iteration.CustomPattern)
		if err != nil {
			_ = provider.Shutdown(ctx)
			return nil, fmt.Errorf("build item source: %w", err)
		}
		src = auto
	}

	step := opts.Step
	if step == nil {
		step, err = pipeline.New(cfg)
		if err != nil {
			_ = provider.Shutdown(ctx)
			return nil, fmt.Errorf("build pipeline step: %w", err)
		}
	}

	store, err := state.Open(cfg.Iteration.StateBackend)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("open state store: %w", err)
	}

	eng := &Engine{
		Store:    store,
		Latency:  observer.NewLatencyRecorder(),
		Tracing:  provider,
		Notifier: opts.Notifier,
		logger:   logger,
	}
	if eng.Notifier == nil {
		eng.Notifier = notifications.NewService(cfg)
	}

	signals := signal.Multi(append([]signal.Signal(nil), opts.Signals...))
	if cfg.Scheduler.BaseURL != "" {
		httpSignal, err := signal.NewHTTPSignal(cfg.Scheduler.BaseURL, cfg.SignalTimeout(),
			signal.WithBearerToken(cfg.Scheduler.Token),
			signal.WithTracer(provider.Tracer()),
		)
		if err != nil {
			_ = eng.Close(ctx)
			return nil, fmt.Errorf("build scheduler signal: %w", err)
		}
		eng.HTTPSignal = httpSignal
		signals = append(signals, httpSignal)
	}

	observers := []observer.Observer{eng.Latency, notifications.NewObserver(eng.Notifier, logger)}
	if cfg.Observers.LogProgress {
		observers = append(observers, observer.NewLogObserver(logger))
	}
	observers = append(observers, opts.Observers...)

	driverOpts := []iteration.Option{
		iteration.WithLogger(logger),
		iteration.WithTracer(provider.Tracer()),
		iteration.WithSignal(signals),
	}
	for _, o := range observers {
		driverOpts = append(driverOpts, iteration.WithObserver(o))
	}
	eng.Driver = iteration.New(store, src, step, driverOpts...)

	logger.Debug("engine ready",
		logging.String("state_backend", cfg.Iteration.StateBackend),
		logging.String("step", cfg.Iteration.Step),
		logging.String("filter_preset", cfg.Iteration.FilterPreset),
		logging.Bool("scheduler_configured", eng.HTTPSignal != nil),
		logging.Bool("tracing_enabled", provider.Enabled()),
	)
	return eng, nil
}

// Invoke runs one driver invocation. A continuation signal that could not be
// delivered stalls the sequence, so it is reported through the notifier.
func (e *Engine) Invoke(ctx context.Context, req iteration.Request) (iteration.Result, error) {
	res, err := e.Driver.Invoke(ctx, req)
	if err == nil && res.SignalErr != nil {
		if notifyErr := e.Notifier.NotifySignalFailed(ctx, res.Collection, res.SignalErr); notifyErr != nil {
			logging.WarnWithContext(logging.WithContext(ctx, e.logger), "signal failure notification failed", "notification_failed",
				logging.Error(notifyErr),
				logging.String(logging.FieldImpact, "operator was not alerted to the stalled sequence"),
			)
		}
	}
	return res, err
}

// DefaultRequest fills unset request fields from the configured defaults.
func DefaultRequest(cfg *config.Config, req iteration.Request) iteration.Request {
	if cfg == nil {
		return req
	}
	if req.Mode == "" {
		req.Mode = iteration.Mode(cfg.Iteration.Mode)
	}
	if req.FailurePolicy == "" {
		req.FailurePolicy = iteration.FailurePolicy(cfg.Iteration.FailurePolicy)
	}
	if req.Lane == "" {
		req.Lane = cfg.Iteration.Lane
	}
	return req
}

// Close shuts down tracing and the state store.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	var errs []error
	if e.Tracing != nil {
		if err := e.Tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close state store: %w", err))
		}
	}
	return errors.Join(errs...)
}
