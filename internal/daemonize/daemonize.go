// Package daemonize detaches the daemon from its terminal.
//
// Go cannot fork a running runtime, so the classic sequence is split across
// two processes. The parent re-executes its own binary in a new session with
// a marker in the environment and exits. The child, seeing the marker,
// clears its umask, makes sure it leads its session, moves to / and points
// its standard streams at /dev/null.
package daemonize

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"shmath/internal/logging"
)

// EnvDetached marks a process started by Spawn.
const EnvDetached = "SHMATHD_DETACHED"

// Step names a detachment step for error reporting.
type Step string

const (
	StepFork    Step = "fork"
	StepSession Step = "session"
	StepChdir   Step = "chdir"
	StepStdio   Step = "stdio"
)

// FatalError reports a detachment step that failed. The process cannot
// continue as a daemon and should exit with ExitCode.
type FatalError struct {
	Step Step
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("daemonize %s: %v", e.Step, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// ExitCode is the process status for a failed detachment.
func (e *FatalError) ExitCode() int { return 1 }

// Role tells the caller which side of the re-exec it is on.
type Role int

const (
	// RoleParent means a detached child was started; the caller should exit 0.
	RoleParent Role = iota + 1
	// RoleChild means the current process is now the daemon.
	RoleChild
)

func (r Role) String() string {
	switch r {
	case RoleParent:
		return "parent"
	case RoleChild:
		return "child"
	default:
		return "unknown"
	}
}

// Result describes the outcome of Daemonize.
type Result struct {
	Role Role
	// PID is the child's pid for RoleParent and the current pid for RoleChild.
	PID int
}

// Options controls detachment. Zero values select the current process's
// arguments, environment and the real operating system.
type Options struct {
	// Executable is the binary to re-execute. Defaults to os.Executable.
	Executable string
	// Args are passed to the child; Args[0] is its argv[0].
	Args   []string
	Env    []string
	Root   string
	System System
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if len(o.Args) == 0 {
		o.Args = os.Args
	}
	if o.Env == nil {
		o.Env = os.Environ()
	}
	if strings.TrimSpace(o.Root) == "" {
		o.Root = "/"
	}
	if o.System == nil {
		o.System = OS()
	}
	o.Logger = logging.NewComponentLogger(o.Logger, "daemonize")
	return o
}

// Daemonize runs the parent or child half of detachment depending on
// whether the detach marker is present in opts.Env.
func Daemonize(opts Options) (Result, error) {
	opts = opts.withDefaults()
	if detached(opts.Env) {
		if err := Detach(opts); err != nil {
			return Result{Role: RoleChild}, err
		}
		return Result{Role: RoleChild, PID: opts.System.Getpid()}, nil
	}
	pid, err := Spawn(opts)
	if err != nil {
		return Result{Role: RoleParent}, err
	}
	return Result{Role: RoleParent, PID: pid}, nil
}

// Spawn starts a detached copy of the executable in a new session with the
// detach marker set, and returns its pid without waiting for it.
func Spawn(opts Options) (int, error) {
	opts = opts.withDefaults()
	exe := strings.TrimSpace(opts.Executable)
	if exe == "" {
		resolved, err := opts.System.Executable()
		if err != nil {
			return 0, &FatalError{Step: StepFork, Err: fmt.Errorf("resolve executable: %w", err)}
		}
		exe = resolved
	}
	env := withMarker(opts.Env)
	pid, err := opts.System.Start(exe, opts.Args, env)
	if err != nil {
		logging.ErrorWithContext(opts.Logger, "daemon launch failed", "daemon_launch_failed",
			logging.Error(err),
			logging.String("executable", exe),
		)
		return 0, &FatalError{Step: StepFork, Err: err}
	}
	opts.Logger.Info("daemon launched",
		logging.Int("pid", pid),
		logging.String(logging.FieldEventType, "daemon_launched"),
	)
	return pid, nil
}

// Detach completes detachment inside the child.
func Detach(opts Options) error {
	opts = opts.withDefaults()
	sys := opts.System

	sys.Umask(0)

	sid, err := sys.Getsid(0)
	if err != nil || sid != sys.Getpid() {
		if _, err := sys.Setsid(); err != nil {
			return &FatalError{Step: StepSession, Err: err}
		}
	}
	if err := sys.Chdir(opts.Root); err != nil {
		return &FatalError{Step: StepChdir, Err: err}
	}
	if err := sys.RedirectStdio(os.DevNull); err != nil {
		return &FatalError{Step: StepStdio, Err: err}
	}
	return nil
}

// IsDetachedChild reports whether the current process was started by Spawn.
func IsDetachedChild() bool {
	return detached(os.Environ())
}

// ExitCode maps a Daemonize error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return fatal.ExitCode()
	}
	return 1
}

func detached(env []string) bool {
	for _, kv := range env {
		if kv == EnvDetached+"=1" {
			return true
		}
	}
	return false
}

func withMarker(env []string) []string {
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, EnvDetached+"=") {
			continue
		}
		out = append(out, kv)
	}
	return append(out, EnvDetached+"=1")
}
