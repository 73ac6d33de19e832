package daemonrun_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"shmath/internal/daemon"
	"shmath/internal/daemonrun"
	"shmath/internal/fifo"
	"shmath/internal/testsupport"
)

// pidProbe captures the pid file contents once the server waits for a client.
type pidProbe struct {
	path string
	seen chan string
}

func (p *pidProbe) StateChanged(_, to fifo.State) {
	if to != fifo.StateAwaitingClient {
		return
	}
	data, _ := os.ReadFile(p.path)
	select {
	case p.seen <- strings.TrimSpace(string(data)):
	default:
	}
}

func (p *pidProbe) CommandDispatched(int, bool)  {}
func (p *pidProbe) ClientDisconnected(err error) {}

func TestRunStopsOnSentinelAndCleansUp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ch := fifo.NewMemoryChannel()
	probe := &pidProbe{path: cfg.PIDPath(), seen: make(chan string, 1)}

	type outcome struct {
		res fifo.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
			Channel:   ch,
			Observers: []fifo.Observer{probe},
		})
		done <- outcome{res, err}
	}()

	select {
	case pid := <-probe.seen:
		if pid != strconv.Itoa(os.Getpid()) {
			t.Fatalf("expected pid file to hold %d, got %q", os.Getpid(), pid)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never awaited a client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w, err := ch.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_, _ = io.WriteString(w, "exit")
	_ = w.Close()

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
	if out.err != nil {
		t.Fatalf("Run: %v", out.err)
	}
	if out.res.Reason != fifo.ReasonSentinel || out.res.Commands != 1 {
		t.Fatalf("unexpected result %+v", out.res)
	}

	if _, err := os.Stat(cfg.PIDPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
	pointer := filepath.Join(cfg.Paths.LogDir, "shmathd.log")
	data, err := os.ReadFile(pointer)
	if err != nil {
		t.Fatalf("read log pointer: %v", err)
	}
	for _, want := range []string{"entering daemon", "exiting daemon", "command received"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("log missing %q:\n%s", want, data)
		}
	}
	if _, err := os.Stat(cfg.Journal.Path); err != nil {
		t.Fatalf("expected journal database: %v", err)
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutJournal())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	holder, err := daemon.New(cfg, nil, daemon.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := holder.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer holder.Release()
	testsupport.WriteFile(t, cfg.PIDPath(), []byte("4242\n"), 0o644)

	res, err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{Channel: fifo.NewMemoryChannel()})
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if res.Reason != fifo.ReasonStartupFailed {
		t.Fatalf("expected startup failure, got %s", res.Reason)
	}
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil || string(data) != "4242\n" {
		t.Fatalf("pid file of running instance was touched: %q %v", data, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutJournal())
	ch := fifo.NewMemoryChannel()
	probe := &pidProbe{path: cfg.PIDPath(), seen: make(chan string, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan fifo.Result, 1)
	go func() {
		res, _ := daemonrun.Run(ctx, cfg, daemonrun.Options{Channel: ch, Observers: []fifo.Observer{probe}})
		done <- res
	}()

	select {
	case <-probe.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("server never awaited a client")
	}
	cancel()

	select {
	case res := <-done:
		if res.Reason != fifo.ReasonCanceled {
			t.Fatalf("expected canceled, got %s", res.Reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
	if ch.Exists() {
		t.Fatal("expected pipe removed after cancel")
	}
}
