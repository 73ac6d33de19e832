package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateChannel(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.Pipe) == "" {
		return errors.New("paths.pipe must be set")
	}
	if strings.HasSuffix(c.Paths.Pipe, "/") {
		return fmt.Errorf("paths.pipe must name a file, got %q", c.Paths.Pipe)
	}
	return nil
}

func (c *Config) validateChannel() error {
	if _, err := parseMode(c.Channel.Mode); err != nil {
		return fmt.Errorf("channel.mode: %w", err)
	}
	if c.Channel.BufferSize < 1 || c.Channel.BufferSize > maxBufferSize {
		return fmt.Errorf("channel.buffer_size must be between 1 and %d", maxBufferSize)
	}
	if len(c.Channel.Sentinel) > c.Channel.BufferSize {
		return errors.New("channel.sentinel must fit within channel.buffer_size")
	}
	switch c.Channel.Framing {
	case FramingRead, FramingLine:
	default:
		return fmt.Errorf("channel.framing must be %q or %q, got %q", FramingRead, FramingLine, c.Channel.Framing)
	}
	if c.Channel.Framing == FramingLine && strings.Contains(c.Channel.Sentinel, "\n") {
		return errors.New("channel.sentinel cannot contain a newline with line framing")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "notice", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if _, ok := syslogFacilities[c.Logging.SyslogFacility]; !ok {
		return fmt.Errorf("logging.syslog_facility: unsupported value %q", c.Logging.SyslogFacility)
	}
	return nil
}

var syslogFacilities = map[string]struct{}{
	"kern": {}, "user": {}, "mail": {}, "daemon": {}, "auth": {}, "syslog": {},
	"lpr": {}, "news": {}, "uucp": {}, "cron": {}, "authpriv": {}, "ftp": {},
	"local0": {}, "local1": {}, "local2": {}, "local3": {}, "local4": {},
	"local5": {}, "local6": {}, "local7": {},
}
