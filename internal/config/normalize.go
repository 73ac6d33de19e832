package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeChannel()
	c.normalizeLogging()
	if err := c.normalizeJournal(); err != nil {
		return err
	}
	return c.normalizeMetrics()
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("SHMATH_PIPE"); ok && strings.TrimSpace(value) != "" {
		c.Paths.Pipe = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.Pipe) == "" {
		c.Paths.Pipe = defaultPipePath
	}
	if strings.TrimSpace(c.Paths.RunDir) == "" {
		c.Paths.RunDir = defaultRunDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	var err error
	if c.Paths.Pipe, err = expandPath(c.Paths.Pipe); err != nil {
		return fmt.Errorf("paths.pipe: %w", err)
	}
	if c.Paths.RunDir, err = expandPath(c.Paths.RunDir); err != nil {
		return fmt.Errorf("paths.run_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeChannel() {
	c.Channel.Mode = strings.TrimSpace(c.Channel.Mode)
	if c.Channel.Mode == "" {
		c.Channel.Mode = defaultPipeMode
	}
	if c.Channel.BufferSize == 0 {
		c.Channel.BufferSize = defaultBufferSize
	}
	if c.Channel.Sentinel == "" {
		c.Channel.Sentinel = defaultSentinel
	}
	c.Channel.Framing = strings.ToLower(strings.TrimSpace(c.Channel.Framing))
	if c.Channel.Framing == "" {
		c.Channel.Framing = defaultFraming
	}
	if c.Channel.OpenRetries < 0 {
		c.Channel.OpenRetries = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	if value, ok := os.LookupEnv("SHMATH_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.SyslogTag = strings.TrimSpace(c.Logging.SyslogTag)
	if c.Logging.SyslogTag == "" {
		c.Logging.SyslogTag = defaultSyslogTag
	}
	c.Logging.SyslogFacility = strings.ToLower(strings.TrimSpace(c.Logging.SyslogFacility))
	if c.Logging.SyslogFacility == "" {
		c.Logging.SyslogFacility = defaultSyslogFacility
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeJournal() error {
	if strings.TrimSpace(c.Journal.Path) == "" {
		c.Journal.Path = filepath.Join(c.Paths.RunDir, "journal.db")
	}
	var err error
	if c.Journal.Path, err = expandPath(c.Journal.Path); err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}
	if c.Journal.MaxEntries < 0 {
		c.Journal.MaxEntries = 0
	}
	return nil
}

func (c *Config) normalizeMetrics() error {
	var err error
	if c.Metrics.Textfile, err = expandPath(strings.TrimSpace(c.Metrics.Textfile)); err != nil {
		return fmt.Errorf("metrics.textfile: %w", err)
	}
	return nil
}
