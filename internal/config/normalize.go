package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIteration()
	if err := c.normalizeSave(); err != nil {
		return err
	}
	c.normalizeScheduler()
	c.normalizeNotifications()
	c.normalizeLogging()
	c.normalizeTracing()
	if c.Observers.StreamCapacity <= 0 {
		c.Observers.StreamCapacity = defaultStreamCapacity
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("BATCHCURSOR_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeIteration() {
	c.Iteration.Mode = lowerOr(c.Iteration.Mode, defaultMode)
	c.Iteration.FailurePolicy = lowerOr(c.Iteration.FailurePolicy, defaultFailurePolicy)
	c.Iteration.FilterPreset = lowerOr(c.Iteration.FilterPreset, defaultFilterPreset)
	c.Iteration.StateBackend = lowerOr(c.Iteration.StateBackend, defaultStateBackend)
	c.Iteration.Step = lowerOr(c.Iteration.Step, defaultStep)
	c.Iteration.CustomPattern = strings.TrimSpace(c.Iteration.CustomPattern)
	if c.Iteration.CustomPattern == "" {
		c.Iteration.CustomPattern = defaultCustomPattern
	}
	c.Iteration.Lane = strings.TrimSpace(c.Iteration.Lane)
	c.Iteration.ExecCommand = strings.TrimSpace(c.Iteration.ExecCommand)
}

func (c *Config) normalizeSave() error {
	var err error
	if strings.TrimSpace(c.Save.OutputRoot) == "" {
		c.Save.OutputRoot = defaultOutputRoot
	}
	if c.Save.OutputRoot, err = expandPath(c.Save.OutputRoot); err != nil {
		return fmt.Errorf("save.output_root: %w", err)
	}
	c.Save.Directory = strings.TrimSpace(c.Save.Directory)
	if strings.HasPrefix(c.Save.Directory, "~") {
		if c.Save.Directory, err = expandPath(c.Save.Directory); err != nil {
			return fmt.Errorf("save.directory: %w", err)
		}
	}
	c.Save.Format = lowerOr(c.Save.Format, defaultSaveFormat)
	if c.Save.Format == "jpeg" {
		c.Save.Format = "jpg"
	}
	if c.Save.Quality == 0 {
		c.Save.Quality = defaultSaveQuality
	}
	c.Save.Overwrite = lowerOr(c.Save.Overwrite, defaultSaveOverwrite)
	return nil
}

func (c *Config) normalizeScheduler() {
	c.Scheduler.BaseURL = strings.TrimRight(strings.TrimSpace(c.Scheduler.BaseURL), "/")
	if c.Scheduler.Token == "" {
		if value, ok := os.LookupEnv("BATCHCURSOR_SCHEDULER_TOKEN"); ok {
			c.Scheduler.Token = strings.TrimSpace(value)
		}
	}
	if c.Scheduler.TimeoutSeconds == 0 {
		c.Scheduler.TimeoutSeconds = defaultSchedulerTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = lowerOr(c.Logging.Format, defaultLogFormat)
	c.Logging.Level = lowerOr(c.Logging.Level, defaultLogLevel)
}

func (c *Config) normalizeTracing() {
	c.Tracing.Endpoint = strings.TrimSpace(c.Tracing.Endpoint)
	if c.Tracing.Endpoint == "" {
		if value, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
			c.Tracing.Endpoint = strings.TrimSpace(value)
		}
	}
	c.Tracing.Protocol = lowerOr(c.Tracing.Protocol, defaultTracingProtocol)
	c.Tracing.ServiceName = strings.TrimSpace(c.Tracing.ServiceName)
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaultTracingServiceName
	}
}

func lowerOr(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}
