package fifo

import (
	"context"
	"io"
	"io/fs"
	"os"
	"sync"
)

// MemoryChannel is an in-process Channel for tests. Each Dial plays the role
// of a writer opening the pipe: every Write on the returned writer arrives
// as one read on the server side, and closing it produces end-of-stream.
type MemoryChannel struct {
	// CreateErr, OpenErr and RemoveErr, when set, are returned by the
	// corresponding operation.
	CreateErr error
	OpenErr   error
	RemoveErr error

	mu       sync.Mutex
	exists   bool
	mode     os.FileMode
	opens    int
	sessions chan *io.PipeReader
	wake     chan struct{}
}

// NewMemoryChannel returns an empty channel with no pipe created.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		sessions: make(chan *io.PipeReader),
		wake:     make(chan struct{}, 1),
	}
}

// Create marks the pipe as existing.
func (m *MemoryChannel) Create(mode os.FileMode) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return false, m.CreateErr
	}
	reused := m.exists
	m.exists = true
	m.mode = mode
	return reused, nil
}

// Open waits for Dial or Wake. A woken Open yields an empty reader.
func (m *MemoryChannel) Open(context.Context) (io.ReadCloser, error) {
	m.mu.Lock()
	err := m.OpenErr
	m.opens++
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	select {
	case r := <-m.sessions:
		return r, nil
	case <-m.wake:
		return io.NopCloser(eofReader{}), nil
	}
}

// Remove marks the pipe as gone.
func (m *MemoryChannel) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	if !m.exists {
		return &fs.PathError{Op: "remove", Path: "memory", Err: fs.ErrNotExist}
	}
	m.exists = false
	return nil
}

// Wake releases one pending or future Open.
func (m *MemoryChannel) Wake() error {
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

// Dial connects a writer, blocking until the server opens the channel.
func (m *MemoryChannel) Dial(ctx context.Context) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	select {
	case m.sessions <- pr:
		return pw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Exists reports whether the pipe is currently created.
func (m *MemoryChannel) Exists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists
}

// Mode returns the permission bits passed to Create.
func (m *MemoryChannel) Mode() os.FileMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Opens counts calls to Open.
func (m *MemoryChannel) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
