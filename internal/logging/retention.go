package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// RetentionTarget names a directory, a glob of per-run log files inside it
// and files that must survive regardless of age.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs deletes target files last modified more than retentionDays
// ago and returns how many were removed. retentionDays <= 0 keeps everything.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, target := range targets {
		for _, path := range target.candidates() {
			info, err := os.Stat(path)
			if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check ownership of log_dir"),
				)
				continue
			}
			removed++
			logger.Info("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
	return removed
}

// candidates lists matching files with excluded paths filtered out.
func (t RetentionTarget) candidates() []string {
	if t.Dir == "" {
		return nil
	}
	pattern := t.Pattern
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(t.Dir, pattern))
	if err != nil {
		return nil
	}
	keep := make([]string, 0, len(t.Exclude))
	for _, p := range t.Exclude {
		if abs, err := filepath.Abs(p); err == nil && p != "" {
			keep = append(keep, abs)
		}
	}
	return slices.DeleteFunc(matches, func(m string) bool {
		abs, err := filepath.Abs(m)
		return err != nil || slices.Contains(keep, abs)
	})
}
