package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"shmath/internal/config"
	"shmath/internal/fifo"
	"shmath/internal/journal"
	"shmath/internal/logging"
	"shmath/internal/metrics"
)

// ErrAlreadyRunning is returned when another daemon holds the pipe lock.
var ErrAlreadyRunning = errors.New("another shmathd instance is already running")

// Options supplies optional collaborators.
type Options struct {
	// SessionID identifies this run in the journal.
	SessionID string
	// Handler runs after the built-in logging and journal handlers.
	Handler fifo.Handler
	// Channel replaces the named pipe, for tests.
	Channel fifo.Channel
	Journal *journal.Store
	Metrics *metrics.Recorder
	// Observers are attached to the channel server in addition to metrics.
	Observers []fifo.Observer
}

// Daemon serves the configured pipe under an exclusive lock.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	opts   Options

	lockPath string
	lock     *flock.Flock
	locked   atomic.Bool
	running  atomic.Bool
}

// New constructs a daemon for cfg.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		opts:     opts,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// LockPath returns the instance lock file.
func (d *Daemon) LockPath() string { return d.lockPath }

// Acquire takes the instance lock. It is a no-op when channel.exclusive is off.
func (d *Daemon) Acquire() error {
	if !d.cfg.Channel.Exclusive || d.locked.Load() {
		return nil
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, d.lockPath)
	}
	d.locked.Store(true)
	d.logger.Debug("instance lock acquired", logging.String("lock", d.lockPath))
	return nil
}

// Release drops the instance lock if held.
func (d *Daemon) Release() {
	if !d.locked.Load() {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "lock is released when the process exits"),
		)
	}
	d.locked.Store(false)
}

// Run serves the pipe until the sentinel, a startup failure or ctx ends.
func (d *Daemon) Run(ctx context.Context) (fifo.Result, error) {
	if !d.running.CompareAndSwap(false, true) {
		return fifo.Result{Reason: fifo.ReasonStartupFailed}, errors.New("daemon already running")
	}
	defer d.running.Store(false)

	if err := d.Acquire(); err != nil {
		logging.ErrorWithContext(d.logger, "instance lock unavailable", "lock_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the running daemon with 'shmath stop' or set channel.exclusive = false"),
		)
		return fifo.Result{Reason: fifo.ReasonStartupFailed}, err
	}
	defer d.Release()

	framing, err := fifo.ParseFraming(d.cfg.Channel.Framing)
	if err != nil {
		return fifo.Result{Reason: fifo.ReasonStartupFailed}, fmt.Errorf("channel framing: %w", err)
	}

	d.startJournal(ctx)

	serverOpts := []fifo.Option{
		fifo.WithMode(d.cfg.PipeMode()),
		fifo.WithBufferSize(d.cfg.Channel.BufferSize),
		fifo.WithSentinel(d.cfg.SentinelBytes()),
		fifo.WithFraming(framing),
		fifo.WithLogger(d.logger),
		fifo.WithOpenRetries(d.cfg.Channel.OpenRetries),
		fifo.WithHandler(fifo.Chain(
			fifo.LogHandler(d.logger),
			d.journalHandler(),
			d.opts.Handler,
		)),
	}
	if d.opts.Channel != nil {
		serverOpts = append(serverOpts, fifo.WithChannel(d.opts.Channel))
	}
	if d.opts.Metrics != nil {
		serverOpts = append(serverOpts,
			fifo.WithObserver(d.opts.Metrics),
			fifo.WithObserver(&textfileExporter{recorder: d.opts.Metrics, path: d.cfg.Metrics.Textfile, logger: d.logger}),
		)
	}
	for _, obs := range d.opts.Observers {
		serverOpts = append(serverOpts, fifo.WithObserver(obs))
	}

	server := fifo.NewServer(d.cfg.Paths.Pipe, serverOpts...)
	result, runErr := server.Run(ctx)

	d.finishJournal(result)
	return result, runErr
}

func (d *Daemon) startJournal(ctx context.Context) {
	store := d.opts.Journal
	if store == nil {
		return
	}
	if err := store.StartRun(ctx, journal.Run{
		SessionID: d.opts.SessionID,
		PID:       os.Getpid(),
		Pipe:      d.cfg.Paths.Pipe,
	}); err != nil {
		logging.WarnWithContext(d.logger, "journal run start failed", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run is missing from history"),
		)
	}
	d.pruneJournal(ctx)
}

func (d *Daemon) finishJournal(result fifo.Result) {
	store := d.opts.Journal
	if store == nil {
		return
	}
	// The run context is usually canceled by now.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.FinishRun(ctx, d.opts.SessionID, result.Reason.String()); err != nil {
		logging.WarnWithContext(d.logger, "journal run finish failed", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run stop reason missing from history"),
		)
	}
	d.pruneJournal(ctx)
}

func (d *Daemon) pruneJournal(ctx context.Context) {
	removed, err := d.opts.Journal.Prune(ctx, d.cfg.Journal.MaxEntries)
	if err != nil {
		logging.WarnWithContext(d.logger, "journal prune failed", "journal_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "journal grows past journal.max_entries"),
		)
		return
	}
	if removed > 0 {
		d.logger.Debug("journal pruned", logging.Int64("removed", removed))
	}
}

func (d *Daemon) journalHandler() fifo.Handler {
	store := d.opts.Journal
	if store == nil {
		return nil
	}
	sentinel := d.cfg.SentinelBytes()
	return fifo.HandlerFunc(func(ctx context.Context, command []byte) {
		entry := journal.Entry{
			SessionID: d.opts.SessionID,
			Command:   bytes.Clone(command),
			Size:      len(command),
			Sentinel:  bytes.HasPrefix(command, sentinel),
		}
		if _, err := store.Record(context.WithoutCancel(ctx), entry); err != nil {
			logging.WarnWithContext(d.logger, "journal record failed", "journal_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "command missing from history"),
			)
		}
	})
}

// textfileExporter writes metrics whenever a client disconnects and when
// the server stops.
type textfileExporter struct {
	recorder *metrics.Recorder
	path     string
	logger   *slog.Logger
}

func (e *textfileExporter) StateChanged(_, to fifo.State) {
	if to == fifo.StateStopped {
		e.export()
	}
}

func (e *textfileExporter) CommandDispatched(int, bool) {}

func (e *textfileExporter) ClientDisconnected(error) { e.export() }

func (e *textfileExporter) export() {
	if err := e.recorder.WriteTextfile(e.path); err != nil {
		logging.WarnWithContext(e.logger, "metrics export failed", "metrics_export_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check metrics.textfile directory permissions"),
			logging.String(logging.FieldImpact, "metrics textfile is stale"),
		)
	}
}
