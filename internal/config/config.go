package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file system locations.
type Paths struct {
	Pipe   string `toml:"pipe"`
	RunDir string `toml:"run_dir"`
	LogDir string `toml:"log_dir"`
}

// Channel contains named pipe behaviour.
type Channel struct {
	// Mode is the octal permission string applied to the pipe (umask is 0).
	Mode        string `toml:"mode"`
	BufferSize  int    `toml:"buffer_size"`
	Sentinel    string `toml:"sentinel"`
	Framing     string `toml:"framing"`
	Exclusive   bool   `toml:"exclusive"`
	OpenRetries int    `toml:"open_retries"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string `toml:"format"`
	Level          string `toml:"level"`
	Syslog         bool   `toml:"syslog"`
	SyslogTag      string `toml:"syslog_tag"`
	SyslogFacility string `toml:"syslog_facility"`
	RetentionDays  int    `toml:"retention_days"`
}

// Journal contains configuration for the command journal.
type Journal struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"` // Default: <run_dir>/journal.db
	MaxEntries int    `toml:"max_entries"`
}

// Metrics contains configuration for the Prometheus textfile export.
type Metrics struct {
	// Textfile is written on every client disconnect and at shutdown. Empty disables export.
	Textfile string `toml:"textfile"`
}

// Config encapsulates all configuration values for shmath.
//
// Configuration sections by subsystem:
//   - Paths: pipe, runtime state and log locations
//   - Channel: pipe mode, read size, sentinel and framing
//   - Logging: log format, level, syslog and retention
//   - Journal: sqlite command history
//   - Metrics: Prometheus textfile export
type Config struct {
	Paths   Paths   `toml:"paths"`
	Channel Channel `toml:"channel"`
	Logging Logging `toml:"logging"`
	Journal Journal `toml:"journal"`
	Metrics Metrics `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/shmath/config.toml")
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

	projectPath, err := filepath.Abs("shmath.toml")
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
	dirs := []string{c.Paths.RunDir, c.Paths.LogDir, filepath.Dir(c.Paths.Pipe)}
	if c.Journal.Enabled {
		dirs = append(dirs, filepath.Dir(c.Journal.Path))
	}
	if c.Metrics.Textfile != "" {
		dirs = append(dirs, filepath.Dir(c.Metrics.Textfile))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PipeMode returns the configured permission bits for the pipe.
func (c *Config) PipeMode() os.FileMode {
	mode, err := parseMode(c.Channel.Mode)
	if err != nil {
		mode, _ = parseMode(defaultPipeMode)
	}
	return mode
}

// LockPath returns the single-instance lock file that sits beside the pipe.
func (c *Config) LockPath() string {
	return c.Paths.Pipe + ".lock"
}

// PIDPath returns the file recording the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.RunDir, "shmathd.pid")
}

// SentinelBytes returns the shutdown sentinel as bytes.
func (c *Config) SentinelBytes() []byte {
	return []byte(c.Channel.Sentinel)
}

func parseMode(value string) (os.FileMode, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0o")
	parsed, err := strconv.ParseUint(trimmed, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("parse octal mode %q: %w", value, err)
	}
	if parsed > 0o777 {
		return 0, fmt.Errorf("mode %q exceeds permission bits", value)
	}
	return os.FileMode(parsed), nil
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

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
