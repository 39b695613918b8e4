package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	LogDir   string `toml:"log_dir" validate:"required"`
	APIBind  string `toml:"api_bind" validate:"required,bind_address"`
	APIToken string `toml:"api_token"`
}

// Iteration holds the defaults applied when a request omits a value.
type Iteration struct {
	Mode          string  `toml:"mode" validate:"oneof=continue reset"`
	FailurePolicy string  `toml:"failure_policy" validate:"oneof=halt-on-error skip-on-error"`
	FilterPreset  string  `toml:"filter_preset" validate:"oneof=all png jpg custom"`
	CustomPattern string  `toml:"custom_pattern"`
	Lane          string  `toml:"lane"`
	StateBackend  string  `toml:"state_backend" validate:"oneof=memory sqlite"`
	Step          string  `toml:"step" validate:"oneof=decode exec save"`
	ExecCommand   string  `toml:"exec_command"`
	MaxRate       float64 `toml:"max_rate" validate:"gte=0"`
}

// Save configures the save step, which writes every processed item into an
// output directory as {prefix}{base name}{suffix}.{ext}.
type Save struct {
	OutputRoot string `toml:"output_root" validate:"required"`
	// Directory is joined onto OutputRoot when relative. Empty means the
	// name of the item's source directory.
	Directory string `toml:"directory"`
	Format    string `toml:"format" validate:"oneof=match png jpg"`
	Quality   int    `toml:"quality" validate:"gte=1,lte=100"`
	Prefix    string `toml:"prefix"`
	Suffix    string `toml:"suffix"`
	Overwrite string `toml:"overwrite" validate:"oneof=overwrite skip rename"`
}

// Scheduler describes the external control plane that receives continue/halt
// instructions. An empty BaseURL disables the HTTP signal.
type Scheduler struct {
	BaseURL        string `toml:"base_url" validate:"omitempty,url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gt=0,lte=30"`
}

// Observers controls progress fan-out.
type Observers struct {
	WebSocket      bool `toml:"websocket"`
	LogProgress    bool `toml:"log_progress"`
	StreamCapacity int  `toml:"stream_capacity" validate:"gt=0"`
}

// Notifications configures ntfy alerts for finished and interrupted
// sequences. An empty NtfyTopic disables them.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" validate:"omitempty,url"`
	RequestTimeout int    `toml:"request_timeout" validate:"gt=0,lte=120"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" validate:"oneof=console json"`
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
}

// Tracing configures the OpenTelemetry exporter. Tracing stays disabled while
// Endpoint is empty.
type Tracing struct {
	Endpoint    string  `toml:"endpoint"`
	Protocol    string  `toml:"protocol" validate:"oneof=grpc http"`
	Insecure    bool    `toml:"insecure"`
	SampleRate  float64 `toml:"sample_rate" validate:"gte=0,lte=1"`
	ServiceName string  `toml:"service_name"`
}

// Enabled reports whether spans should be exported.
func (t Tracing) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// Config encapsulates all configuration values for batchcursor.
//
// Configuration sections by subsystem:
//   - Paths: log directory and API bind address
//   - Iteration: request defaults, state backend, and pipeline step
//   - Save: output naming for the save step
//   - Scheduler: continuation signal target
//   - Observers: websocket hub and progress logging
//   - Notifications: ntfy alerts
//   - Logging: log format and level
//   - Tracing: OTLP export settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Iteration     Iteration     `toml:"iteration"`
	Save          Save          `toml:"save"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Observers     Observers     `toml:"observers"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Tracing       Tracing       `toml:"tracing"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/batchcursor/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("batchcursor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir}
	if c.Iteration.Step == "save" {
		dirs = append(dirs, c.Save.OutputRoot)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the flock file guarding a single daemon per log directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "batchcursord.lock")
}

// APIBaseURL returns the http URL clients use to reach the daemon API.
func (c *Config) APIBaseURL() string {
	return "http://" + c.Paths.APIBind
}

// SignalTimeout is the per-call deadline applied to continuation signals.
func (c *Config) SignalTimeout() time.Duration {
	if c.Scheduler.TimeoutSeconds <= 0 {
		return time.Duration(defaultSchedulerTimeoutSeconds) * time.Second
	}
	return time.Duration(c.Scheduler.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
