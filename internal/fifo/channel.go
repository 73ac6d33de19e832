package fifo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// ErrNotFIFO is returned when the pipe path is occupied by something other
// than a named pipe.
var ErrNotFIFO = errors.New("path exists and is not a named pipe")

// Channel abstracts the named pipe the server reads from.
type Channel interface {
	// Create makes the pipe with the given permission bits. reused is true
	// when a named pipe already existed at the path.
	Create(mode os.FileMode) (reused bool, err error)
	// Open blocks until a writer connects and returns the read end.
	Open(ctx context.Context) (io.ReadCloser, error)
	// Remove unlinks the pipe.
	Remove() error
	// Wake releases a pending Open. It is safe to call at any time.
	Wake() error
}

type fifoChannel struct {
	path string
}

// NewFIFOChannel returns a Channel backed by a named pipe at path.
func NewFIFOChannel(path string) Channel {
	return &fifoChannel{path: path}
}

func (c *fifoChannel) Create(mode os.FileMode) (bool, error) {
	info, err := os.Lstat(c.path)
	switch {
	case err == nil:
		if info.Mode()&os.ModeNamedPipe != 0 {
			return true, nil
		}
		return false, fmt.Errorf("%w: %s (%s)", ErrNotFIFO, c.path, info.Mode().Type())
	case !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("stat %s: %w", c.path, err)
	}
	if err := unix.Mkfifo(c.path, uint32(mode.Perm())); err != nil {
		return false, &os.PathError{Op: "mkfifo", Path: c.path, Err: err}
	}
	// mkfifo honours the umask; a foreground run has not cleared it.
	if err := os.Chmod(c.path, mode.Perm()); err != nil {
		return false, err
	}
	return false, nil
}

// Open blocks in open(2) until a writer appears. Cancellation is delivered
// through Wake, since the open itself cannot observe ctx.
func (c *fifoChannel) Open(context.Context) (io.ReadCloser, error) {
	file, err := os.OpenFile(c.path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (c *fifoChannel) Remove() error {
	return os.Remove(c.path)
}

// Wake briefly opens the write end without blocking, which completes a
// reader stuck in Open. ENXIO means no reader is waiting.
func (c *fifoChannel) Wake() error {
	fd, err := unix.Open(c.path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENXIO) || errors.Is(err, unix.ENOENT) {
			return nil
		}
		return &os.PathError{Op: "wake", Path: c.path, Err: err}
	}
	return unix.Close(fd)
}
