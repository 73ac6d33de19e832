package fifo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"shmath/internal/logging"
)

const (
	// DefaultBufferSize bounds a single read.
	DefaultBufferSize = 4096
	// DefaultMode is applied to a newly created pipe.
	DefaultMode os.FileMode = 0o666

	wakeInterval = 50 * time.Millisecond
)

// DefaultSentinel stops the server when a command begins with it.
var DefaultSentinel = []byte("exit")

// Option configures a Server.
type Option func(*Server)

// WithMode sets the pipe permission bits.
func WithMode(mode os.FileMode) Option {
	return func(s *Server) { s.mode = mode.Perm() }
}

// WithBufferSize sets the read buffer size. Non-positive values are ignored.
func WithBufferSize(size int) Option {
	return func(s *Server) {
		if size > 0 {
			s.bufferSize = size
		}
	}
}

// WithSentinel sets the shutdown prefix. An empty sentinel is ignored.
func WithSentinel(sentinel []byte) Option {
	return func(s *Server) {
		if len(sentinel) > 0 {
			s.sentinel = append([]byte(nil), sentinel...)
		}
	}
}

// WithFraming selects how reads are cut into commands.
func WithFraming(f Framing) Option {
	return func(s *Server) { s.framing = f }
}

// WithHandler sets the command handler. The default logs each command.
func WithHandler(h Handler) Option {
	return func(s *Server) { s.handler = h }
}

// WithLogger sets the lifecycle logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithChannel replaces the named pipe with another Channel.
func WithChannel(ch Channel) Option {
	return func(s *Server) { s.channel = ch }
}

// WithObserver adds an observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return func(s *Server) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithOpenRetries retries a failed open up to n times with exponential backoff.
func WithOpenRetries(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.openRetries = n
		}
	}
}

// Server reads commands from one named pipe until told to stop.
type Server struct {
	path        string
	mode        os.FileMode
	bufferSize  int
	sentinel    []byte
	framing     Framing
	handler     Handler
	logger      *slog.Logger
	channel     Channel
	observers   observers
	openRetries int

	state State
}

// NewServer builds a Server for the pipe at path.
func NewServer(path string, opts ...Option) *Server {
	s := &Server{
		path:       path,
		mode:       DefaultMode,
		bufferSize: DefaultBufferSize,
		sentinel:   DefaultSentinel,
		logger:     logging.NewNop(),
		state:      StateStarting,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(
		logging.String(logging.FieldComponent, "fifo"),
		logging.String(logging.FieldPipe, path),
	)
	if s.channel == nil {
		s.channel = NewFIFOChannel(path)
	}
	if s.handler == nil {
		s.handler = LogHandler(s.logger)
	}
	return s
}

// Path returns the pipe path.
func (s *Server) Path() string { return s.path }

// Run drives the server until the sentinel arrives, startup fails or ctx is
// canceled. Startup failures are also returned as an error.
func (s *Server) Run(ctx context.Context) (Result, error) {
	var result Result

	reused, err := s.channel.Create(s.mode)
	if err != nil {
		logging.ErrorWithContext(s.logger, "pipe create failed", "pipe_create_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the object at the pipe path or choose another paths.pipe"),
		)
		s.transition(StateStopped)
		result.Reason = ReasonStartupFailed
		return result, fmt.Errorf("create pipe %s: %w", s.path, err)
	}
	if reused {
		s.logger.Info("pipe reused", logging.String(logging.FieldEventType, "pipe_reused"))
	} else {
		s.logger.Info("pipe created",
			logging.String("mode", fmt.Sprintf("%04o", s.mode)),
			logging.String(logging.FieldEventType, "pipe_created"),
		)
	}

	watcher := watchCancel(ctx, s.channel)
	defer watcher.stop()

	for {
		s.transition(StateAwaitingClient)
		reader, err := s.open(ctx)
		if ctx.Err() != nil {
			if reader != nil {
				s.closeReader(reader)
			}
			return s.shutdown(result, ReasonCanceled), nil
		}
		if err != nil {
			logging.ErrorWithContext(s.logger, "pipe open failed", "pipe_open_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check pipe permissions"),
			)
			s.removePipe()
			s.transition(StateStopped)
			result.Reason = ReasonStartupFailed
			return result, fmt.Errorf("open pipe %s: %w", s.path, err)
		}
		result.Sessions++
		s.logger.Info("pipe opened", logging.String(logging.FieldEventType, "pipe_opened"))
		s.transition(StateServing)

		guarded := watcher.track(reader)
		stop, readErr := s.serve(ctx, guarded, &result)
		watcher.untrack()

		if stop {
			s.closeReader(guarded)
			return s.shutdown(result, ReasonSentinel), nil
		}
		if ctx.Err() != nil {
			s.closeReader(guarded)
			return s.shutdown(result, ReasonCanceled), nil
		}
		if readErr != nil {
			logging.WarnWithContext(s.logger, "pipe read failed; reopening", "pipe_read_failed",
				logging.Error(readErr),
				logging.String(logging.FieldImpact, "the current client is dropped"),
			)
		} else {
			s.logger.Info("client disconnected", logging.String(logging.FieldEventType, "client_disconnected"))
		}
		s.observers.clientDisconnected(readErr)
		s.closeReader(guarded)
	}
}

// serve reads until end-of-stream, a read error or the sentinel.
func (s *Server) serve(ctx context.Context, reader io.Reader, result *Result) (bool, error) {
	buf := make([]byte, s.bufferSize)
	fr := newFramer(s.framing, s.bufferSize)
	emit := func(unit []byte) bool {
		return s.dispatch(ctx, unit, result)
	}
	for {
		n, err := reader.Read(buf)
		if n > 0 && fr.feed(buf[:n], emit) {
			return true, nil
		}
		if err == nil && n > 0 {
			continue
		}
		if fr.flush(emit) {
			return true, nil
		}
		if err == nil || errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
}

func (s *Server) dispatch(ctx context.Context, unit []byte, result *Result) bool {
	sentinel := bytes.HasPrefix(unit, s.sentinel)
	result.Commands++
	s.handler.Handle(ctx, unit)
	s.observers.commandDispatched(len(unit), sentinel)
	if sentinel {
		s.logger.Info("sentinel received", logging.String(logging.FieldEventType, "sentinel_received"))
	}
	return sentinel
}

func (s *Server) open(ctx context.Context) (io.ReadCloser, error) {
	if s.openRetries == 0 {
		return s.channel.Open(ctx)
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 0

	var reader io.ReadCloser
	attempt := 0
	op := func() error {
		attempt++
		r, err := s.channel.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			if attempt <= s.openRetries {
				logging.WarnWithContext(s.logger, "pipe open failed; retrying", "pipe_open_retry",
					logging.Error(err),
					logging.Int("attempt", attempt),
					logging.String(logging.FieldImpact, "clients wait until the pipe opens"),
				)
			}
			return err
		}
		reader = r
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.openRetries)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return reader, nil
}

func (s *Server) shutdown(result Result, reason Reason) Result {
	if reason == ReasonCanceled {
		s.logger.Info("shutdown requested", logging.String(logging.FieldEventType, "shutdown_requested"))
	}
	s.transition(StateShuttingDown)
	s.removePipe()
	s.transition(StateStopped)
	result.Reason = reason
	return result
}

func (s *Server) closeReader(reader io.Closer) {
	if err := reader.Close(); err != nil {
		logging.WarnWithContext(s.logger, "pipe close failed", "pipe_close_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a file descriptor may leak until exit"),
		)
		return
	}
	s.logger.Info("pipe closed", logging.String(logging.FieldEventType, "pipe_closed"))
}

func (s *Server) removePipe() {
	if err := s.channel.Remove(); err != nil {
		logging.WarnWithContext(s.logger, "pipe remove failed", "pipe_remove_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the pipe by hand before the next start"),
			logging.String(logging.FieldImpact, "the pipe stays on disk"),
		)
		return
	}
	s.logger.Info("pipe removed", logging.String(logging.FieldEventType, "pipe_removed"))
}

func (s *Server) transition(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.logger.Debug("state changed",
		logging.String("from", from.String()),
		logging.String(logging.FieldState, to.String()),
	)
	s.observers.stateChanged(from, to)
}

// cancelWatcher unblocks the run loop when ctx ends: it closes the reader
// being served and keeps waking any pending open until stopped.
type cancelWatcher struct {
	mu       sync.Mutex
	current  io.Closer
	canceled bool
	done     chan struct{}
	wg       sync.WaitGroup
}

func watchCancel(ctx context.Context, ch Channel) *cancelWatcher {
	w := &cancelWatcher{done: make(chan struct{})}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		select {
		case <-w.done:
			return
		case <-ctx.Done():
		}
		w.mu.Lock()
		w.canceled = true
		if w.current != nil {
			_ = w.current.Close()
		}
		w.mu.Unlock()

		ticker := time.NewTicker(wakeInterval)
		defer ticker.Stop()
		for {
			_ = ch.Wake()
			select {
			case <-w.done:
				return
			case <-ticker.C:
			}
		}
	}()
	return w
}

// track guards reader so the watcher and the loop can both close it.
func (w *cancelWatcher) track(reader io.ReadCloser) io.ReadCloser {
	guarded := &onceCloser{ReadCloser: reader}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = guarded
	if w.canceled {
		_ = guarded.Close()
	}
	return guarded
}

func (w *cancelWatcher) untrack() {
	w.mu.Lock()
	w.current = nil
	w.mu.Unlock()
}

func (w *cancelWatcher) stop() {
	close(w.done)
	w.wg.Wait()
}

type onceCloser struct {
	io.ReadCloser
	once sync.Once
	err  error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() { c.err = c.ReadCloser.Close() })
	return c.err
}
