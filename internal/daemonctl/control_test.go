package daemonctl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"shmath/internal/daemon"
	"shmath/internal/daemonctl"
	"shmath/internal/daemonrun"
	"shmath/internal/fifo"
	"shmath/internal/testsupport"
)

// awaitObserver signals every time the server waits for a new client.
type awaitObserver struct{ awaiting chan struct{} }

func (o *awaitObserver) StateChanged(_, to fifo.State) {
	if to == fifo.StateAwaitingClient {
		o.awaiting <- struct{}{}
	}
}
func (o *awaitObserver) CommandDispatched(int, bool)  {}
func (o *awaitObserver) ClientDisconnected(err error) {}

func (o *awaitObserver) wait(t *testing.T) {
	t.Helper()
	select {
	case <-o.awaiting:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not await a client")
	}
}

func TestSendMissingPipe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shmathp")
	err := daemonctl.Send(context.Background(), path, []byte("ping"))
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestSendRefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shmathp")
	testsupport.WriteFile(t, path, nil, 0o644)
	err := daemonctl.Send(context.Background(), path, []byte("ping"))
	if !errors.Is(err, fifo.ErrNotFIFO) {
		t.Fatalf("expected ErrNotFIFO, got %v", err)
	}
}

func TestSendWithoutReaderGivesUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shmathp")
	if err := unix.Mkfifo(path, 0o600); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := daemonctl.Send(ctx, path, []byte("ping"))
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestSendDeliversToReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shmathp")
	if err := unix.Mkfifo(path, 0o600); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}
	got := make(chan string, 1)
	go func() {
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			got <- "open: " + err.Error()
			return
		}
		defer f.Close()
		buf := make([]byte, 64)
		n, _ := f.Read(buf)
		got <- string(buf[:n])
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := daemonctl.Send(ctx, path, []byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case msg := <-got:
		if msg != "ping" {
			t.Fatalf("reader got %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reader received nothing")
	}
}

func TestWaitForPipeAndRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shmathp")
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = unix.Mkfifo(path, 0o600)
	}()
	if err := daemonctl.WaitForPipe(context.Background(), path, 5*time.Second); err != nil {
		t.Fatalf("WaitForPipe: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.Remove(path)
	}()
	if err := daemonctl.WaitForRemoval(context.Background(), path, 5*time.Second); err != nil {
		t.Fatalf("WaitForRemoval: %v", err)
	}
}

func TestWaitForPipeTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shmathp")
	err := daemonctl.WaitForPipe(context.Background(), path, 50*time.Millisecond)
	if !errors.Is(err, daemonctl.ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
}

func TestProcessInfo(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "shmathd.pid")

	alive, pid, err := daemonctl.ProcessInfo(pidPath)
	if err != nil || alive || pid != 0 {
		t.Fatalf("missing pid file: alive=%v pid=%d err=%v", alive, pid, err)
	}

	testsupport.WriteFile(t, pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
	alive, pid, err = daemonctl.ProcessInfo(pidPath)
	if err != nil || !alive || pid != os.Getpid() {
		t.Fatalf("own pid: alive=%v pid=%d err=%v", alive, pid, err)
	}

	testsupport.WriteFile(t, pidPath, []byte("not-a-pid"), 0o644)
	if _, _, err := daemonctl.ProcessInfo(pidPath); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestForceKillRefusesSelf(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "shmathd.pid")
	testsupport.WriteFile(t, pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644)
	if _, err := daemonctl.ForceKillProcess(pidPath, "", 0); err == nil {
		t.Fatal("expected refusal to kill current process")
	}
	if _, err := os.Stat(pidPath); err != nil {
		t.Fatalf("pid file should be untouched: %v", err)
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutJournal())
	_, err := daemonctl.StopAndTerminate(context.Background(), cfg, 100*time.Millisecond)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStatusOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutJournal())
	st := daemonctl.BuildStatus(cfg)
	if st.Running || st.PipeExists || st.LockHeld || st.ProcessAlive {
		t.Fatalf("unexpected offline status %+v", st)
	}
	if _, err := os.Stat(cfg.LockPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("status probe must not create the lock file, got %v", err)
	}
	lines := st.Lines()
	if len(lines) == 0 || lines[0].Label != "Daemon" || lines[0].Severity != "warn" {
		t.Fatalf("unexpected lines %+v", lines)
	}
}

func TestStatusSendAndStopAgainstRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	obs := &awaitObserver{awaiting: make(chan struct{}, 8)}
	done := make(chan fifo.Result, 1)
	go func() {
		res, _ := daemonrun.Run(context.Background(), cfg, daemonrun.Options{Observers: []fifo.Observer{obs}})
		done <- res
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := daemonctl.WaitForPipe(ctx, cfg.Paths.Pipe, 5*time.Second); err != nil {
		t.Fatalf("WaitForPipe: %v", err)
	}
	obs.wait(t)

	st := daemonctl.BuildStatus(cfg)
	if !st.PipeIsFIFO || !st.LockHeld || !st.Running || st.PipeMode != 0o666 {
		t.Fatalf("unexpected running status %+v", st)
	}

	if err := daemonctl.Send(ctx, cfg.Paths.Pipe, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// The next client must arrive after the daemon reopened its end.
	obs.wait(t)

	stop, err := daemonctl.StopAndTerminate(ctx, cfg, 5*time.Second)
	if err != nil {
		t.Fatalf("StopAndTerminate: %v", err)
	}
	if !stop.StopAcknowledged || stop.ForcedKill {
		t.Fatalf("unexpected stop result %+v", stop)
	}

	select {
	case res := <-done:
		if res.Reason != fifo.ReasonSentinel {
			t.Fatalf("expected sentinel stop, got %s", res.Reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if _, err := os.Lstat(cfg.Paths.Pipe); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected pipe removed, got %v", err)
	}

	store := testsupport.MustOpenJournal(t, cfg)
	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 || string(entries[1].Command) != "hello" || !entries[0].Sentinel {
		t.Fatalf("unexpected journal %+v", entries)
	}
}

func TestEnsureStartedReportsRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutJournal())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if err := unix.Mkfifo(cfg.Paths.Pipe, 0o600); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}
	holder, err := daemon.New(cfg, nil, daemon.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := holder.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer holder.Release()

	res, err := daemonctl.EnsureStarted(context.Background(), cfg, "/nonexistent/shmath", daemonctl.LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if res.State != daemonctl.StartStateAlreadyRunning {
		t.Fatalf("expected already running, got %s", res.State)
	}
}
