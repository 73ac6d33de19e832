package testsupport

import (
	"path/filepath"
	"testing"

	"shmath/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Syslog is off so tests never depend on a running syslog daemon.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.Pipe = filepath.Join(base, "shmathp")
	cfgVal.Paths.RunDir = filepath.Join(base, "run")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Journal.Path = filepath.Join(base, "run", "journal.db")
	cfgVal.Logging.Syslog = false

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

// WithFraming sets channel.framing.
func WithFraming(framing string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Channel.Framing = framing
	}
}

// WithBufferSize sets channel.buffer_size.
func WithBufferSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Channel.BufferSize = size
	}
}

// WithoutJournal disables the command journal.
func WithoutJournal() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Enabled = false
	}
}

// WithMetricsTextfile enables metrics export under the test directory.
func WithMetricsTextfile() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.Textfile = filepath.Join(b.baseDir, "metrics", "shmathd.prom")
	}
}

// WithExclusive toggles the instance lock.
func WithExclusive(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Channel.Exclusive = enabled
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.Pipe)
}
