package config

const (
	defaultDataDir                   = "~/.local/share/mediaforge"
	defaultMediaDir                  = "~/.local/share/mediaforge/media"
	defaultOverlayDir                = "~/.local/share/mediaforge/overlays"
	defaultLogDir                    = "~/.local/share/mediaforge/logs"
	defaultFFmpegBinary              = "ffmpeg"
	defaultFFprobeBinary             = "ffprobe"
	defaultEngineTimeoutSeconds      = 1800
	defaultProbeTimeoutSeconds       = 60
	defaultWorkflowWorkers           = 2
	defaultWorkflowPollInterval      = 2
	defaultWorkflowErrorRetry        = 10
	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120
	defaultDispatchBackend           = DispatchSQLite
	defaultRedisURL                  = "redis://localhost:6379/0"
	defaultRedisQueue                = "mediaforge"
	defaultAPIBind                   = "127.0.0.1:7587"
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			MediaDir:   defaultMediaDir,
			OverlayDir: defaultOverlayDir,
			LogDir:     defaultLogDir,
		},
		Engine: Engine{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			TimeoutSeconds: defaultEngineTimeoutSeconds,
			ProbeTimeout:   defaultProbeTimeoutSeconds,
		},
		Workflow: Workflow{
			Workers:            defaultWorkflowWorkers,
			PollInterval:       defaultWorkflowPollInterval,
			ErrorRetryInterval: defaultWorkflowErrorRetry,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
		},
		Dispatch: Dispatch{
			Backend:    defaultDispatchBackend,
			RedisURL:   defaultRedisURL,
			RedisQueue: defaultRedisQueue,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
