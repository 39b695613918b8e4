package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"batchcursor/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("BATCHCURSOR_API_TOKEN", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantLogs := filepath.Join(tempHome, ".local", "share", "batchcursor", "logs")
	if cfg.Paths.LogDir != wantLogs {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogs)
	}
	if cfg.Iteration.Mode != "continue" {
		t.Fatalf("expected continue mode by default, got %q", cfg.Iteration.Mode)
	}
	if cfg.Iteration.FailurePolicy != "halt-on-error" {
		t.Fatalf("expected halt-on-error by default, got %q", cfg.Iteration.FailurePolicy)
	}
	if cfg.Iteration.CustomPattern != "*.png,*.jpg,*.jpeg,*.webp" {
		t.Fatalf("unexpected default pattern %q", cfg.Iteration.CustomPattern)
	}
	if cfg.Scheduler.BaseURL != "" {
		t.Fatalf("expected scheduler disabled by default, got %q", cfg.Scheduler.BaseURL)
	}
	if cfg.SignalTimeout().Seconds() != 3 {
		t.Fatalf("expected 3s signal timeout, got %s", cfg.SignalTimeout())
	}
	if cfg.Tracing.Enabled() {
		t.Fatal("expected tracing disabled without endpoint")
	}
	wantOutput := filepath.Join(tempHome, ".local", "share", "batchcursor", "output")
	if cfg.Save.OutputRoot != wantOutput {
		t.Fatalf("unexpected output root: got %q want %q", cfg.Save.OutputRoot, wantOutput)
	}
	if cfg.Save.Format != "match" || cfg.Save.Quality != 100 || cfg.Save.Overwrite != "overwrite" {
		t.Fatalf("unexpected save defaults %+v", cfg.Save)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	info, err := os.Stat(cfg.Paths.LogDir)
	if err != nil {
		t.Fatalf("expected log dir to exist: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("expected %q to be directory", cfg.Paths.LogDir)
	}
	if got := cfg.LockPath(); filepath.Dir(got) != cfg.Paths.LogDir {
		t.Fatalf("lock path %q not inside log dir", got)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "batchcursor.toml")

	type payload struct {
		Iteration struct {
			Mode          string `toml:"mode"`
			FailurePolicy string `toml:"failure_policy"`
			FilterPreset  string `toml:"filter_preset"`
			Lane          string `toml:"lane"`
		} `toml:"iteration"`
		Scheduler struct {
			BaseURL        string `toml:"base_url"`
			TimeoutSeconds int    `toml:"timeout_seconds"`
		} `toml:"scheduler"`
	}
	custom := payload{}
	custom.Iteration.Mode = "RESET"
	custom.Iteration.FailurePolicy = "skip-on-error"
	custom.Iteration.FilterPreset = "png"
	custom.Iteration.Lane = " nightly "
	custom.Scheduler.BaseURL = "http://127.0.0.1:9000/"
	custom.Scheduler.TimeoutSeconds = 5
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Iteration.Mode != "reset" {
		t.Fatalf("expected mode to be lowercased, got %q", cfg.Iteration.Mode)
	}
	if cfg.Iteration.FailurePolicy != "skip-on-error" {
		t.Fatalf("expected skip-on-error, got %q", cfg.Iteration.FailurePolicy)
	}
	if cfg.Iteration.FilterPreset != "png" {
		t.Fatalf("expected png preset, got %q", cfg.Iteration.FilterPreset)
	}
	if cfg.Iteration.Lane != "nightly" {
		t.Fatalf("expected trimmed lane, got %q", cfg.Iteration.Lane)
	}
	if cfg.Scheduler.BaseURL != "http://127.0.0.1:9000" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Scheduler.BaseURL)
	}
	if cfg.SignalTimeout().Seconds() != 5 {
		t.Fatalf("expected 5s timeout, got %s", cfg.SignalTimeout())
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "batchcursor.toml")
	if err := os.WriteFile(configPath, []byte("[iteration]\nbogus = true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestEnvVarFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BATCHCURSOR_API_TOKEN", "env-api")
	t.Setenv("BATCHCURSOR_SCHEDULER_TOKEN", "env-scheduler")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")

	configPath := filepath.Join(t.TempDir(), "batchcursor.toml")
	if err := os.WriteFile(configPath, []byte("[scheduler]\ntoken = \"file-scheduler\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIToken != "env-api" {
		t.Errorf("expected API token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Scheduler.Token != "file-scheduler" {
		t.Errorf("expected file scheduler token to win, got %q", cfg.Scheduler.Token)
	}
	if !cfg.Tracing.Enabled() || cfg.Tracing.Endpoint != "localhost:4317" {
		t.Errorf("expected tracing endpoint from env, got %q", cfg.Tracing.Endpoint)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "failure_policy") {
		t.Fatalf("sample config missing failure_policy: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.LogDir, "batchcursor") {
		t.Fatalf("expected log dir to contain batchcursor, got %q", cfg.Paths.LogDir)
	}

	t.Setenv("HOME", t.TempDir())
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"mode", func(c *config.Config) { c.Iteration.Mode = "rewind" }, "iteration.mode"},
		{"policy", func(c *config.Config) { c.Iteration.FailurePolicy = "retry" }, "iteration.failure_policy"},
		{"preset", func(c *config.Config) { c.Iteration.FilterPreset = "gif" }, "iteration.filter_preset"},
		{"exec without command", func(c *config.Config) { c.Iteration.Step = "exec" }, "iteration.exec_command"},
		{"scheduler scheme", func(c *config.Config) { c.Scheduler.BaseURL = "ftp://example.com" }, "scheduler.base_url"},
		{"timeout", func(c *config.Config) { c.Scheduler.TimeoutSeconds = 0 }, "scheduler.timeout_seconds"},
		{"bind", func(c *config.Config) { c.Paths.APIBind = "localhost" }, "paths.api_bind"},
		{"sample rate", func(c *config.Config) { c.Tracing.SampleRate = 2 }, "tracing.sample_rate"},
		{"ntfy topic", func(c *config.Config) { c.Notifications.NtfyTopic = "not a url" }, "notifications.ntfy_topic"},
		{"ntfy timeout", func(c *config.Config) { c.Notifications.RequestTimeout = -1 }, "notifications.request_timeout"},
		{"save format", func(c *config.Config) { c.Save.Format = "webp" }, "save.format"},
		{"save quality", func(c *config.Config) { c.Save.Quality = 101 }, "save.quality"},
		{"save overwrite", func(c *config.Config) { c.Save.Overwrite = "clobber" }, "save.overwrite"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error to mention %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Iteration.Step = "exec"
	cfg.Iteration.ExecCommand = "true {}"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected exec config to validate: %v", err)
	}
}
