package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"

	"shmath/internal/fifo"
)

// Send writes command into the pipe at path as a single write.
//
// The daemon closes and reopens its end between clients, so an open that
// finds no reader (ENXIO) is retried with backoff until ctx ends.
func Send(ctx context.Context, path string, command []byte) error {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrDaemonNotRunning
		}
		return fmt.Errorf("stat pipe: %w", err)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		return fmt.Errorf("%s: %w", path, fifo.ErrNotFIFO)
	}

	fd := -1
	var lastErr error
	op := func() error {
		n, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		lastErr = err
		switch {
		case err == nil:
			fd = n
			return nil
		case errors.Is(err, unix.ENXIO), errors.Is(err, unix.EINTR):
			return err
		case errors.Is(err, unix.ENOENT):
			return backoff.Permanent(ErrDaemonNotRunning)
		default:
			return backoff.Permanent(fmt.Errorf("open pipe: %w", err))
		}
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 0
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		if errors.Is(lastErr, unix.ENXIO) {
			return fmt.Errorf("%w: no reader on %s", ErrDaemonNotRunning, path)
		}
		return err
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("set blocking: %w", err)
	}
	file := os.NewFile(uintptr(fd), path)
	defer file.Close()
	if _, err := file.Write(command); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}
