package config

const (
	defaultLogDir                  = "~/.local/share/batchcursor/logs"
	defaultAPIBind                 = "127.0.0.1:7493"
	defaultMode                    = "continue"
	defaultFailurePolicy           = "halt-on-error"
	defaultFilterPreset            = "all"
	defaultCustomPattern           = "*.png,*.jpg,*.jpeg,*.webp"
	defaultStateBackend            = "memory"
	defaultStep                    = "decode"
	defaultOutputRoot              = "~/.local/share/batchcursor/output"
	defaultSaveFormat              = "match"
	defaultSaveQuality             = 100
	defaultSaveOverwrite           = "overwrite"
	defaultSchedulerTimeoutSeconds = 3
	defaultStreamCapacity          = 512
	defaultNtfyRequestTimeout      = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultTracingProtocol         = "grpc"
	defaultTracingServiceName      = "batchcursor"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Iteration: Iteration{
			Mode:          defaultMode,
			FailurePolicy: defaultFailurePolicy,
			FilterPreset:  defaultFilterPreset,
			CustomPattern: defaultCustomPattern,
			StateBackend:  defaultStateBackend,
			Step:          defaultStep,
		},
		Save: Save{
			OutputRoot: defaultOutputRoot,
			Format:     defaultSaveFormat,
			Quality:    defaultSaveQuality,
			Overwrite:  defaultSaveOverwrite,
		},
		Scheduler: Scheduler{
			TimeoutSeconds: defaultSchedulerTimeoutSeconds,
		},
		Observers: Observers{
			WebSocket:      true,
			LogProgress:    true,
			StreamCapacity: defaultStreamCapacity,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Tracing: Tracing{
			Protocol:    defaultTracingProtocol,
			SampleRate:  1.0,
			ServiceName: defaultTracingServiceName,
		},
	}
}
