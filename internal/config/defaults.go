package config

const (
	defaultPipePath         = "/tmp/shmathp"
	defaultRunDir           = "~/.local/state/shmath"
	defaultLogDir           = "~/.local/state/shmath/logs"
	defaultPipeMode         = "0666"
	defaultBufferSize       = 4096
	defaultSentinel         = "exit"
	defaultFraming          = FramingRead
	defaultExclusive        = true
	defaultOpenRetries      = 0
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
	defaultSyslogTag        = "shmathd"
	defaultSyslogFacility   = "daemon"
	defaultJournalEnabled   = true
	defaultJournalMax       = 10000
	maxBufferSize           = 1 << 20
)

// Framing values for channel.framing.
const (
	// FramingRead treats every read() as one command.
	FramingRead = "read"
	// FramingLine splits the stream on newlines.
	FramingLine = "line"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			Pipe:   defaultPipePath,
			RunDir: defaultRunDir,
			LogDir: defaultLogDir,
		},
		Channel: Channel{
			Mode:        defaultPipeMode,
			BufferSize:  defaultBufferSize,
			Sentinel:    defaultSentinel,
			Framing:     defaultFraming,
			Exclusive:   defaultExclusive,
			OpenRetries: defaultOpenRetries,
		},
		Logging: Logging{
			Format:         defaultLogFormat,
			Level:          defaultLogLevel,
			Syslog:         true,
			SyslogTag:      defaultSyslogTag,
			SyslogFacility: defaultSyslogFacility,
			RetentionDays:  defaultLogRetentionDays,
		},
		Journal: Journal{
			Enabled:    defaultJournalEnabled,
			MaxEntries: defaultJournalMax,
		},
	}
}
