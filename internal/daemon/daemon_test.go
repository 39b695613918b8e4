package daemon

import (
	"context"
	"io"
	"testing"

	"batchcursor/internal/config"
	"batchcursor/internal/engine"
	"batchcursor/internal/logging"
	"batchcursor/internal/observer"
	"batchcursor/internal/scheduler"
	"batchcursor/internal/signal"
	"batchcursor/internal/testsupport"
)

type fixture struct {
	cfg    *config.Config
	daemon *Daemon
	hub    *logging.StreamHub
	events *observer.WebSocketHub
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	hub := logging.NewStreamHub(256)
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", Writer: io.Discard, Stream: hub})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	events := observer.NewWebSocketHub(logger)
	jobs := scheduler.NewJobs(scheduler.WithJobLogger(logger))

	eng, err := engine.Build(context.Background(), cfg, engine.Options{
		Logger:    logger,
		Signals:   []signal.Signal{jobs.Relay()},
		Observers: []observer.Observer{events},
	})
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	jobs.Bind(eng)

	d, err := New(cfg, eng, jobs, logger, WithLogStream(hub), WithEventHub(events))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return &fixture{cfg: cfg, daemon: d, hub: hub, events: events}
}

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := f.daemon.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.APIAddress == "" || status.APIAddress == "127.0.0.1:0" {
		t.Fatalf("expected bound address, got %q", status.APIAddress)
	}
	if status.LockFilePath != f.cfg.LockPath() {
		t.Fatalf("lock path = %q", status.LockFilePath)
	}

	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	f.daemon.Stop()
	if f.daemon.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	first := newFixture(t)
	ctx := context.Background()
	if err := first.daemon.Start(ctx); err != nil {
		t.Fatalf("Start first: %v", err)
	}
	t.Cleanup(first.daemon.Stop)

	jobs := scheduler.NewJobs()
	eng, err := engine.Build(ctx, first.cfg, engine.Options{})
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	second, err := New(first.cfg, eng, jobs, logging.NewNop())
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	if err := second.Start(ctx); err == nil {
		t.Fatal("expected lock contention error")
	}
}

func TestDaemonTestNotificationWithoutTopic(t *testing.T) {
	f := newFixture(t)
	sent, message, err := f.daemon.TestNotification(context.Background())
	if err != nil || sent || message != "ntfy topic not configured" {
		t.Fatalf("TestNotification = %v, %q, %v", sent, message, err)
	}
}
