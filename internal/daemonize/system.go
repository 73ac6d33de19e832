package daemonize

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// System is the set of process calls detachment needs.
type System interface {
	Umask(mask int) int
	Getpid() int
	Getsid(pid int) (int, error)
	Setsid() (int, error)
	Chdir(dir string) error
	// RedirectStdio points fds 0, 1 and 2 at path.
	RedirectStdio(path string) error
	Executable() (string, error)
	// Start launches a process in a new session with stdio on /dev/null.
	Start(path string, args, env []string) (int, error)
}

type osSystem struct{}

// OS returns the System backed by the real kernel.
func OS() System { return osSystem{} }

func (osSystem) Umask(mask int) int { return unix.Umask(mask) }

func (osSystem) Getpid() int { return unix.Getpid() }

func (osSystem) Getsid(pid int) (int, error) { return unix.Getsid(pid) }

func (osSystem) Setsid() (int, error) { return unix.Setsid() }

func (osSystem) Chdir(dir string) error { return os.Chdir(dir) }

func (osSystem) Executable() (string, error) { return os.Executable() }

func (osSystem) RedirectStdio(path string) error {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	for target := 0; target <= 2; target++ {
		if fd == target {
			continue
		}
		if err := unix.Dup3(fd, target, 0); err != nil {
			_ = unix.Close(fd)
			return fmt.Errorf("redirect fd %d: %w", target, err)
		}
	}
	if fd > 2 {
		return unix.Close(fd)
	}
	return nil
}

func (osSystem) Start(path string, args, env []string) (int, error) {
	cmd := exec.Command(path)
	if len(args) > 0 {
		cmd.Args = append([]string(nil), args...)
	}
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", path, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release child %d: %w", pid, err)
	}
	return pid, nil
}
