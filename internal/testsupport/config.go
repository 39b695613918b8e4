package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"batchcursor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It binds the API to an ephemeral port and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Save.OutputRoot = filepath.Join(base, "output")
	cfgVal.Observers.LogProgress = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSchedulerURL points continuation signals at url.
func WithSchedulerURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.BaseURL = url
	}
}

// WithStateBackend selects the state store backend.
func WithStateBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Iteration.StateBackend = backend
	}
}

// WithFailurePolicy sets the default failure policy.
func WithFailurePolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Iteration.FailurePolicy = policy
	}
}

// WithSaveStep selects the save step with the given overwrite mode. Output
// lands under BaseDir/output.
func WithSaveStep(overwrite string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Iteration.Step = "save"
		b.cfg.Save.Overwrite = overwrite
	}
}

// WithAPIToken requires bearer authentication on the daemon API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithStubbedCommand writes an executable shell script named name into a
// temp bin directory, prepends it to PATH, and configures the exec step to run
// it with the item path.
func WithStubbedCommand(name, script string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, name)
		if err := os.WriteFile(target, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
			b.t.Fatalf("write stub %s: %v", name, err)
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
		b.cfg.Iteration.Step = "exec"
		b.cfg.Iteration.ExecCommand = name + " {}"
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
