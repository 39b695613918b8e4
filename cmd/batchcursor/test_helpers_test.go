package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"batchcursor/internal/config"
	"batchcursor/internal/daemon"
	"batchcursor/internal/engine"
	"batchcursor/internal/logging"
	"batchcursor/internal/observer"
	"batchcursor/internal/scheduler"
	"batchcursor/internal/signal"
	"batchcursor/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	configPath string
	baseDir    string
}

// setupCLITestEnv starts an in-process daemon on an ephemeral port and
// writes a config file pointing the CLI at it.
func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

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

	d, err := daemon.New(cfg, eng, jobs, logger, daemon.WithLogStream(hub), daemon.WithEventHub(events))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = d.Close()
	})

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg.Paths.LogDir, d.APIAddress())

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		configPath: configPath,
		baseDir:    base,
	}
}

// offlineConfig writes a config whose API address has nothing listening.
func offlineConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	path := filepath.Join(base, "config.toml")
	writeTestConfig(t, path, filepath.Join(base, "logs"), "127.0.0.1:1")
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path, logDir, apiBind string) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nlog_dir = %q\napi_bind = %q\n\n[observers]\nlog_progress = false\n\n[logging]\nlevel = \"warn\"\n",
		logDir,
		apiBind,
	)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
