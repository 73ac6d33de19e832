package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWaitTimeout is returned when a wait exceeds its timeout.
var ErrWaitTimeout = errors.New("timed out")

// WaitForPipe blocks until a FIFO exists at path.
func WaitForPipe(ctx context.Context, path string, timeout time.Duration) error {
	return waitForPath(ctx, path, timeout, fsnotify.Create|fsnotify.Rename, isFIFO)
}

// WaitForRemoval blocks until nothing exists at path.
func WaitForRemoval(ctx context.Context, path string, timeout time.Duration) error {
	return waitForPath(ctx, path, timeout, fsnotify.Remove|fsnotify.Rename, func(p string) bool {
		_, err := os.Lstat(p)
		return errors.Is(err, os.ErrNotExist)
	})
}

func waitForPath(ctx context.Context, path string, timeout time.Duration, ops fsnotify.Op, done func(string) bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	// Checked after Add so an event between the check and the watch is not lost.
	if done(path) {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("waiting for %s: %w", path, ErrWaitTimeout)
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if filepath.Clean(event.Name) != path || event.Op&ops == 0 {
				continue
			}
			if done(path) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
}

func isFIFO(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeNamedPipe != 0
}
