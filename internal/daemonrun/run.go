// Package daemonrun runs one shmathd process lifetime: it sets up logging,
// signal handling, the pid file, the journal and metrics, then hands control
// to the daemon until it stops.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"shmath/internal/config"
	"shmath/internal/daemon"
	"shmath/internal/fifo"
	"shmath/internal/journal"
	"shmath/internal/logging"
	"shmath/internal/metrics"
	"shmath/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when non-empty.
	LogLevel    string
	Development bool
	// Foreground also writes log records to stdout.
	Foreground bool
	Handler    fifo.Handler
	// Channel replaces the named pipe, for tests.
	Channel fifo.Channel
	// Observers are attached to the channel server.
	Observers []fifo.Observer
}

// Run starts the shmathd runtime and blocks until the channel server stops.
// The returned result tells a sentinel or signal stop apart from a startup
// failure; startup failures also return an error.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) (fifo.Result, error) {
	failed := fifo.Result{Reason: fifo.ReasonStartupFailed}
	if cfg == nil {
		return failed, fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return failed, fmt.Errorf("ensure directories: %w", err)
	}

	sessionID := uuid.NewString()
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("%s-%s.log", logging.DaemonName, runID))

	logger, err := newLogger(cfg, opts, logPath, sessionID)
	if err != nil {
		return failed, fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		logging.WarnWithContext(logger, "unable to update log pointer", "log_pointer_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, logging.DaemonName+".log may point at an older run"),
		)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: logging.DaemonName + "-*.log", Exclude: []string{logPath}},
	)

	logger.Info("entering daemon",
		logging.Int("pid", os.Getpid()),
		logging.String(logging.FieldPipe, cfg.Paths.Pipe),
		logging.String("log_path", logPath),
		logging.String(logging.FieldEventType, "daemon_entered"),
	)

	for _, check := range preflight.Failed(preflight.RunAll(cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
		)
	}

	var store *journal.Store
	if cfg.Journal.Enabled {
		store, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			logging.WarnWithContext(logger, "journal unavailable", "journal_open_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check journal.path permissions"),
				logging.String(logging.FieldImpact, "commands are not recorded for history"),
			)
			store = nil
		} else {
			defer store.Close()
		}
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.Textfile != "" {
		recorder = metrics.NewRecorder(nil)
	}

	d, err := daemon.New(cfg, logger, daemon.Options{
		SessionID: sessionID,
		Handler:   opts.Handler,
		Channel:   opts.Channel,
		Journal:   store,
		Metrics:   recorder,
		Observers: opts.Observers,
	})
	if err != nil {
		return failed, fmt.Errorf("create daemon: %w", err)
	}

	// Lock before the pid file so a refused second instance never
	// overwrites the running daemon's pid.
	if err := d.Acquire(); err != nil {
		logging.ErrorWithContext(logger, "instance lock unavailable", "lock_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the running daemon with 'shmath stop'"),
		)
		logExit(logger, failed)
		return failed, err
	}
	defer d.Release()

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		logExit(logger, failed)
		return failed, fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	result, runErr := d.Run(signalCtx)
	logExit(logger, result)
	return result, runErr
}

func newLogger(cfg *config.Config, opts Options, logPath, sessionID string) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	outputs := []string{logPath}
	if opts.Foreground {
		outputs = append([]string{"stdout"}, outputs...)
	}
	base := logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		Outputs:     outputs,
		Development: opts.Development,
		SessionID:   sessionID,
	}

	var syslogErr error
	if cfg.Logging.Syslog {
		withSyslog := base
		withSyslog.Syslog = &logging.SyslogOptions{
			Tag:      cfg.Logging.SyslogTag,
			Facility: cfg.Logging.SyslogFacility,
		}
		logger, err := logging.New(withSyslog)
		if err == nil {
			return logger.With(logging.String(logging.FieldDaemon, logging.DaemonName)), nil
		}
		syslogErr = err
	}

	logger, err := logging.New(base)
	if err != nil {
		return nil, err
	}
	logger = logger.With(logging.String(logging.FieldDaemon, logging.DaemonName))
	if syslogErr != nil {
		logging.WarnWithContext(logger, "syslog unavailable; logging to file only", "syslog_unavailable",
			logging.Error(syslogErr),
			logging.String(logging.FieldErrorHint, "check that a syslog daemon is listening on /dev/log"),
			logging.String(logging.FieldImpact, "records are missing from the system log"),
		)
	}
	return logger, nil
}

func logExit(logger *slog.Logger, result fifo.Result) {
	logger.Info("exiting daemon",
		logging.String("reason", result.Reason.String()),
		logging.Int("commands", result.Commands),
		logging.Int("sessions", result.Sessions),
		logging.String(logging.FieldEventType, "daemon_exited"),
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.DaemonName+".log")
	if err := os.Remove(current); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
