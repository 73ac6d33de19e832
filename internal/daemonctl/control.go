package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"shmath/internal/config"
	"shmath/internal/daemonize"
)

// ErrDaemonNotRunning indicates no daemon is reading the pipe.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
	Logger     *slog.Logger
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// Launch starts a detached `daemon` subcommand of executablePath and returns
// its pid.
func Launch(executablePath string, opts LaunchOptions) (int, error) {
	if strings.TrimSpace(executablePath) == "" {
		return 0, fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{executablePath, "daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	pid, err := daemonize.Spawn(daemonize.Options{
		Executable: executablePath,
		Args:       args,
		Logger:     opts.Logger,
	})
	if err != nil {
		return 0, fmt.Errorf("launch daemon: %w", err)
	}
	return pid, nil
}

// EnsureStarted launches the daemon unless one is already serving the pipe,
// then waits for the pipe to appear.
func EnsureStarted(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if cfg == nil {
		return StartResult{}, errors.New("configuration not available")
	}
	status := BuildStatus(cfg)
	if status.Running {
		return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
	}

	pid, err := Launch(executablePath, opts)
	if err != nil {
		return StartResult{}, err
	}
	if err := WaitForPipe(ctx, cfg.Paths.Pipe, waitTimeout); err != nil {
		return StartResult{PID: pid}, fmt.Errorf("daemon failed to start: %w", err)
	}
	return StartResult{State: StartStateStarted, PID: pid}, nil
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// StopAndTerminate writes the sentinel into the pipe and waits for the
// daemon to remove it. A daemon that is still alive after gracePeriod is
// killed using the pid file.
func StopAndTerminate(ctx context.Context, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	if cfg == nil {
		return StopResult{}, errors.New("configuration not available")
	}
	_, pid, _ := ProcessInfo(cfg.PIDPath())
	result := StopResult{PID: pid}

	sendCtx, cancel := context.WithTimeout(ctx, gracePeriod)
	err := Send(sendCtx, cfg.Paths.Pipe, cfg.SentinelBytes())
	cancel()
	switch {
	case err == nil:
		result.StopAcknowledged = true
		if waitErr := WaitForRemoval(ctx, cfg.Paths.Pipe, gracePeriod); waitErr == nil {
			return result, nil
		}
	case errors.Is(err, ErrDaemonNotRunning):
		if pid == 0 {
			return result, ErrDaemonNotRunning
		}
	default:
		if pid == 0 {
			return result, err
		}
	}

	alive, livePID, _ := ProcessInfo(cfg.PIDPath())
	if !alive {
		if result.StopAcknowledged {
			return result, nil
		}
		return result, ErrDaemonNotRunning
	}
	killedPID, killErr := ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), livePID)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	_ = os.Remove(cfg.Paths.Pipe)
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// ProcessInfo reads pidPath and reports whether that process is alive.
func ProcessInfo(pidPath string) (bool, int, error) {
	pid, err := readPID(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, err
	}
	if pid <= 0 {
		return false, 0, nil
	}
	return processAlive(pid), pid, nil
}

// ForceKillProcess sends SIGKILL to daemon process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	parsed, err := readPID(pidPath)
	if err == nil && parsed > 0 {
		pid = parsed
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("parse pid file %q: %w", path, err)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	err := unix.Kill(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, unix.EPERM)
}
