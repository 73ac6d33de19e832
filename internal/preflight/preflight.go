package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"shmath/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// syslogSocket is where log/syslog dials the local daemon.
var syslogSocket = "/dev/log"

// RunAll executes all applicable preflight checks for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckPipePath(cfg.Paths.Pipe),
		CheckCreatableDirectory("Run directory", cfg.Paths.RunDir),
		CheckCreatableDirectory("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Journal.Enabled {
		results = append(results, CheckCreatableDirectory("Journal directory", filepath.Dir(cfg.Journal.Path)))
	}
	if cfg.Metrics.Textfile != "" {
		results = append(results, CheckCreatableDirectory("Metrics directory", filepath.Dir(cfg.Metrics.Textfile)))
	}
	if cfg.Logging.Syslog {
		results = append(results, CheckSyslog())
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// CheckPipePath verifies the pipe path is free or already a named pipe, and
// that its directory allows creating one.
func CheckPipePath(path string) Result {
	const name = "Pipe path"
	info, err := os.Lstat(path)
	switch {
	case err == nil && info.Mode()&os.ModeNamedPipe != 0:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (existing pipe will be reused)", path)}
	case err == nil:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: occupied by a %s)", path, describeType(info.Mode()))}
	case !errors.Is(err, fs.ErrNotExist):
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	dir := CheckDirectoryAccess(name, filepath.Dir(path))
	if !dir.Passed {
		return dir
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (free)", path)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCreatableDirectory passes when path is an accessible directory or can
// be created under its nearest existing ancestor.
func CheckCreatableDirectory(name, path string) Result {
	if _, err := os.Stat(path); err == nil || !errors.Is(err, fs.ErrNotExist) {
		return CheckDirectoryAccess(name, path)
	}
	ancestor := filepath.Dir(path)
	for {
		if _, err := os.Stat(ancestor); err == nil {
			break
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			break
		}
		ancestor = parent
	}
	if parentCheck := CheckDirectoryAccess(name, ancestor); !parentCheck.Passed {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot create under %s)", path, ancestor)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
}

// CheckSyslog verifies the local syslog socket exists.
func CheckSyslog() Result {
	const name = "Syslog"
	info, err := os.Stat(syslogSocket)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s unavailable: %v", syslogSocket, err)}
	}
	if info.Mode()&os.ModeSocket == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s is not a socket", syslogSocket)}
	}
	return Result{Name: name, Passed: true, Detail: syslogSocket}
}

func describeType(mode os.FileMode) string {
	switch {
	case mode.IsDir():
		return "directory"
	case mode&os.ModeSymlink != 0:
		return "symlink"
	case mode&os.ModeSocket != 0:
		return "socket"
	case mode.IsRegular():
		return "regular file"
	default:
		return mode.Type().String()
	}
}
