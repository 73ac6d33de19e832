package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shmath/internal/daemonize"
	"shmath/internal/daemonrun"
	"shmath/internal/fifo"
	"shmath/internal/testsupport"
)

// stubSystem records detachment calls without touching the process.
type stubSystem struct {
	started  []string
	startErr error
	chdirs   []string
}

func (s *stubSystem) Umask(int) int               { return 0o022 }
func (s *stubSystem) Getpid() int                 { return 100 }
func (s *stubSystem) Getsid(int) (int, error)     { return 1, nil }
func (s *stubSystem) Setsid() (int, error)        { return 100, nil }
func (s *stubSystem) Chdir(dir string) error      { s.chdirs = append(s.chdirs, dir); return nil }
func (s *stubSystem) RedirectStdio(string) error  { return nil }
func (s *stubSystem) Executable() (string, error) { return "/usr/bin/shmathd", nil }
func (s *stubSystem) Start(path string, _, _ []string) (int, error) {
	if s.startErr != nil {
		return 0, s.startErr
	}
	s.started = append(s.started, path)
	return 4242, nil
}

func writeConfig(t *testing.T, opts ...testsupport.ConfigOption) string {
	t.Helper()
	t.Setenv("SHMATH_PIPE", "")
	cfg := testsupport.NewConfig(t, opts...)
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	testsupport.WriteFile(t, path, data, 0o644)
	return path
}

func TestExitStatus(t *testing.T) {
	cases := []struct {
		name   string
		result fifo.Result
		err    error
		want   int
	}{
		{"sentinel", fifo.Result{Reason: fifo.ReasonSentinel}, nil, 0},
		{"canceled", fifo.Result{Reason: fifo.ReasonCanceled}, nil, 0},
		{"startup failed", fifo.Result{Reason: fifo.ReasonStartupFailed}, nil, 1},
		{"error", fifo.Result{Reason: fifo.ReasonStartupFailed}, errors.New("boom"), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitStatus(tc.result, tc.err); got != tc.want {
				t.Fatalf("exitStatus = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRunBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	testsupport.WriteFile(t, path, []byte("[channel]\nbuffer_size = -1\n"), 0o644)
	var stderr bytes.Buffer
	if code := run(context.Background(), runEnv{configPath: path, stderr: &stderr}); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "load config") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestRunParentReturnsAfterSpawn(t *testing.T) {
	sys := &stubSystem{}
	code := run(context.Background(), runEnv{
		configPath: writeConfig(t),
		stderr:     &bytes.Buffer{},
		detach:     daemonize.Options{System: sys, Env: []string{"PATH=/bin"}, Args: []string{"shmathd"}},
	})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if len(sys.started) != 1 || sys.started[0] != "/usr/bin/shmathd" {
		t.Fatalf("expected one spawn, got %v", sys.started)
	}
}

func TestRunParentSpawnFailure(t *testing.T) {
	sys := &stubSystem{startErr: errors.New("fork failed")}
	var stderr bytes.Buffer
	code := run(context.Background(), runEnv{
		configPath: writeConfig(t),
		stderr:     &stderr,
		detach:     daemonize.Options{System: sys, Env: []string{}, Args: []string{"shmathd"}},
	})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	requireSubstring(t, stderr.String(), "fork failed")
}

func TestRunChildServesUntilSentinel(t *testing.T) {
	sys := &stubSystem{}
	ch := fifo.NewMemoryChannel()
	done := make(chan int, 1)
	go func() {
		done <- run(context.Background(), runEnv{
			configPath: writeConfig(t, testsupport.WithoutJournal()),
			stderr:     &bytes.Buffer{},
			detach: daemonize.Options{
				System: sys,
				Env:    []string{daemonize.EnvDetached + "=1"},
				Root:   t.TempDir(),
			},
			serve: daemonrun.Options{Channel: ch},
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w, err := ch.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_, _ = w.Write([]byte("exit"))
	_ = w.Close()

	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("expected exit 0, got %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("child did not stop")
	}
	if len(sys.started) != 0 {
		t.Fatal("child must not spawn another process")
	}
	if len(sys.chdirs) != 1 {
		t.Fatalf("expected one chdir, got %v", sys.chdirs)
	}
}

func requireSubstring(t *testing.T, s, sub string) {
	t.Helper()
	if !strings.Contains(s, sub) {
		t.Fatalf("expected %q to contain %q", s, sub)
	}
}
