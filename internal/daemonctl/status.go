package daemonctl

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"shmath/internal/config"
)

// Status is an offline snapshot of daemon state gathered from the
// filesystem and process table.
type Status struct {
	Running bool

	Pipe       string
	PipeExists bool
	PipeIsFIFO bool
	PipeMode   os.FileMode
	// Writable reports whether the current user may open the pipe for writing.
	Writable bool

	LockPath string
	LockHeld bool

	PIDPath      string
	PID          int
	ProcessAlive bool

	JournalPath string
}

// StatusLine is one labelled row of status output.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// BuildStatus probes the pipe, the instance lock and the pid file.
func BuildStatus(cfg *config.Config) Status {
	st := Status{
		Pipe:     cfg.Paths.Pipe,
		LockPath: cfg.LockPath(),
		PIDPath:  cfg.PIDPath(),
	}
	if cfg.Journal.Enabled {
		st.JournalPath = cfg.Journal.Path
	}

	if info, err := os.Lstat(st.Pipe); err == nil {
		st.PipeExists = true
		st.PipeIsFIFO = info.Mode()&os.ModeNamedPipe != 0
		st.PipeMode = info.Mode().Perm()
		st.Writable = unix.Access(st.Pipe, unix.W_OK) == nil
	}

	if cfg.Channel.Exclusive {
		st.LockHeld = lockHeld(st.LockPath)
	}
	st.ProcessAlive, st.PID, _ = ProcessInfo(st.PIDPath)

	st.Running = st.PipeIsFIFO && (st.LockHeld || st.ProcessAlive)
	return st
}

// Lines renders the snapshot as labelled rows for display.
func (s Status) Lines() []StatusLine {
	lines := make([]StatusLine, 0, 4)
	switch {
	case s.Running && s.PID > 0:
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", s.PID)})
	case s.Running:
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "ok", Detail: "Running"})
	case s.ProcessAlive:
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "warn", Detail: fmt.Sprintf("Process %d alive but pipe missing", s.PID)})
	default:
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "warn", Detail: "Not running (run `shmath start`)"})
	}

	switch {
	case !s.PipeExists:
		lines = append(lines, StatusLine{Label: "Pipe", Severity: "info", Detail: s.Pipe + " (absent)"})
	case !s.PipeIsFIFO:
		lines = append(lines, StatusLine{Label: "Pipe", Severity: "error", Detail: s.Pipe + " is not a named pipe"})
	case !s.Writable:
		lines = append(lines, StatusLine{Label: "Pipe", Severity: "warn", Detail: fmt.Sprintf("%s (%04o, not writable)", s.Pipe, s.PipeMode)})
	default:
		lines = append(lines, StatusLine{Label: "Pipe", Severity: "ok", Detail: fmt.Sprintf("%s (%04o)", s.Pipe, s.PipeMode)})
	}

	if s.LockHeld {
		lines = append(lines, StatusLine{Label: "Lock", Severity: "ok", Detail: "Held: " + s.LockPath})
	} else {
		lines = append(lines, StatusLine{Label: "Lock", Severity: "info", Detail: "Free"})
	}

	if s.JournalPath != "" {
		lines = append(lines, StatusLine{Label: "Journal", Severity: "info", Detail: s.JournalPath})
	}
	return lines
}

// lockHeld probes the instance lock without creating a lock file.
func lockHeld(path string) bool {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false
	}
	probe := flock.New(path)
	locked, err := probe.TryLock()
	if err != nil {
		return false
	}
	if locked {
		_ = probe.Unlock()
		return false
	}
	return true
}
