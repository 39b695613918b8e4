package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"batchcursor/internal/config"
	"batchcursor/internal/daemon"
	"batchcursor/internal/engine"
	"batchcursor/internal/logging"
	"batchcursor/internal/observer"
	"batchcursor/internal/scheduler"
	"batchcursor/internal/signal"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Ready, when set, is called once the API is serving.
	Ready func(*daemon.Daemon)
}

// Run starts the batchcursor daemon and blocks until ctx is canceled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := ossignal.NotifyContext(cmdCtx, unix.SIGINT, unix.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("batchcursord-%s.log", runID))
	logHub := logging.NewStreamHub(cfg.Observers.StreamCapacity)

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
		Stream:      logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update batchcursord.log link: %v\n", err)
	}
	pidPath := filepath.Join(cfg.Paths.LogDir, "batchcursord.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	jobs := scheduler.NewJobs(
		scheduler.WithJobRate(cfg.Iteration.MaxRate),
		scheduler.WithJobLogger(logger),
	)
	buildOpts := engine.Options{
		Logger:  logger,
		Signals: []signal.Signal{jobs.Relay()},
	}
	daemonOpts := []daemon.Option{daemon.WithLogStream(logHub)}
	if cfg.Observers.WebSocket {
		events := observer.NewWebSocketHub(logger)
		buildOpts.Observers = append(buildOpts.Observers, events)
		daemonOpts = append(daemonOpts, daemon.WithEventHub(events))
	}

	eng, err := engine.Build(signalCtx, cfg, buildOpts)
	if err != nil {
		jobs.Close()
		logger.Error("build engine", logging.Error(err))
		return err
	}
	jobs.Bind(eng)

	d, err := daemon.New(cfg, eng, jobs, logger, daemonOpts...)
	if err != nil {
		jobs.Close()
		_ = eng.Close(context.Background())
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.api_bind and that no other daemon holds "+cfg.LockPath()),
		)
		return err
	}
	logConfigSnapshot(logger, cfg, d)
	if opts.Ready != nil {
		opts.Ready(d)
	}

	<-signalCtx.Done()
	logger.Info("batchcursor daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "batchcursord.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config, d *daemon.Daemon) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("api_address", d.APIAddress()),
		logging.Bool("api_token_present", cfg.Paths.APIToken != ""),
		logging.String("state_backend", cfg.Iteration.StateBackend),
		logging.String("step", cfg.Iteration.Step),
		logging.String("failure_policy", cfg.Iteration.FailurePolicy),
		logging.String("filter_preset", cfg.Iteration.FilterPreset),
		logging.Float64("max_rate", cfg.Iteration.MaxRate),
		logging.Bool("scheduler_configured", cfg.Scheduler.BaseURL != ""),
		logging.Bool("ntfy_configured", cfg.Notifications.NtfyTopic != ""),
		logging.Bool("tracing_enabled", cfg.Tracing.Enabled()),
		logging.Bool("websocket_events", cfg.Observers.WebSocket),
	)
}
