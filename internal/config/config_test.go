package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"shmath/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SHMATH_PIPE", "")
	t.Setenv("SHMATH_LOG_LEVEL", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "shmath", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if cfg.Paths.Pipe != "/tmp/shmathp" {
		t.Fatalf("unexpected pipe path %q", cfg.Paths.Pipe)
	}
	if cfg.PipeMode() != 0o666 {
		t.Fatalf("unexpected pipe mode %o", cfg.PipeMode())
	}
	if cfg.Channel.BufferSize != 4096 {
		t.Fatalf("unexpected buffer size %d", cfg.Channel.BufferSize)
	}
	if string(cfg.SentinelBytes()) != "exit" {
		t.Fatalf("unexpected sentinel %q", cfg.Channel.Sentinel)
	}
	if cfg.Channel.Framing != config.FramingRead {
		t.Fatalf("unexpected framing %q", cfg.Channel.Framing)
	}
	if !cfg.Channel.Exclusive {
		t.Fatal("expected exclusive lock by default")
	}
	wantRun := filepath.Join(tempHome, ".local", "state", "shmath")
	if cfg.Paths.RunDir != wantRun {
		t.Fatalf("unexpected run dir %q want %q", cfg.Paths.RunDir, wantRun)
	}
	if cfg.Journal.Path != filepath.Join(wantRun, "journal.db") {
		t.Fatalf("unexpected journal path %q", cfg.Journal.Path)
	}
	if cfg.LockPath() != "/tmp/shmathp.lock" {
		t.Fatalf("unexpected lock path %q", cfg.LockPath())
	}
	if cfg.PIDPath() != filepath.Join(wantRun, "shmathd.pid") {
		t.Fatalf("unexpected pid path %q", cfg.PIDPath())
	}
	if cfg.Logging.SyslogTag != "shmathd" || cfg.Logging.SyslogFacility != "daemon" {
		t.Fatalf("unexpected syslog identity %q/%q", cfg.Logging.SyslogTag, cfg.Logging.SyslogFacility)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "shmath.toml")

	type payload struct {
		Paths struct {
			Pipe   string `toml:"pipe"`
			RunDir string `toml:"run_dir"`
		} `toml:"paths"`
		Channel struct {
			Mode       string `toml:"mode"`
			BufferSize int    `toml:"buffer_size"`
			Framing    string `toml:"framing"`
			Exclusive  bool   `toml:"exclusive"`
		} `toml:"channel"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.Pipe = filepath.Join(tempDir, "cmdp")
	custom.Paths.RunDir = filepath.Join(tempDir, "run")
	custom.Channel.Mode = "0620"
	custom.Channel.BufferSize = 512
	custom.Channel.Framing = "LINE"
	custom.Channel.Exclusive = false
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SHMATH_PIPE", "")

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.Pipe != custom.Paths.Pipe {
		t.Fatalf("unexpected pipe %q", cfg.Paths.Pipe)
	}
	if cfg.PipeMode() != 0o620 {
		t.Fatalf("unexpected mode %o", cfg.PipeMode())
	}
	if cfg.Channel.BufferSize != 512 {
		t.Fatalf("unexpected buffer size %d", cfg.Channel.BufferSize)
	}
	if cfg.Channel.Framing != config.FramingLine {
		t.Fatalf("expected framing normalized to line, got %q", cfg.Channel.Framing)
	}
	if cfg.Channel.Exclusive {
		t.Fatal("expected exclusive disabled")
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
	if cfg.Channel.Sentinel != "exit" {
		t.Fatalf("expected default sentinel to survive partial file, got %q", cfg.Channel.Sentinel)
	}
}

func TestEnvOverrides(t *testing.T) {
	pipe := filepath.Join(t.TempDir(), "envp")
	t.Setenv("SHMATH_PIPE", pipe)
	t.Setenv("SHMATH_LOG_LEVEL", "DEBUG")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.Pipe != pipe {
		t.Fatalf("expected env pipe %q, got %q", pipe, cfg.Paths.Pipe)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected env log level, got %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SHMATH_PIPE", "")
	t.Setenv("SHMATH_LOG_LEVEL", "")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"mode", "[channel]\nmode = \"999\"\n", "channel.mode"},
		{"buffer", "[channel]\nbuffer_size = -1\n", "channel.buffer_size"},
		{"framing", "[channel]\nframing = \"chunk\"\n", "channel.framing"},
		{"sentinel", "[channel]\nbuffer_size = 2\n", "channel.sentinel"},
		{"level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
		{"facility", "[logging]\nsyslog_facility = \"bogus\"\n", "logging.syslog_facility"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "shmath.toml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %s error, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("SHMATH_PIPE", "")
	t.Setenv("SHMATH_LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Paths.Pipe != config.Default().Paths.Pipe {
		t.Fatalf("sample should keep default pipe, got %q", cfg.Paths.Pipe)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Pipe = filepath.Join(base, "pipes", "shmathp")
	cfg.Paths.RunDir = filepath.Join(base, "run")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Journal.Path = filepath.Join(base, "db", "journal.db")
	cfg.Metrics.Textfile = filepath.Join(base, "metrics", "shmathd.prom")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{"pipes", "run", "logs", "db", "metrics"} {
		info, err := os.Stat(filepath.Join(base, dir))
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestEncodeRoundTripsDefaults(t *testing.T) {
	cfg := config.Default()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), "sentinel = 'exit'") && !strings.Contains(string(data), `sentinel = "exit"`) {
		t.Fatalf("expected sentinel in encoded config:\n%s", data)
	}
}
