package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shmath/internal/journal"
)

const historyCommandWidth = 48

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent commands recorded by the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if !cfg.Journal.Enabled {
				return errors.New("journal is disabled (set journal.enabled = true)")
			}
			store, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			stdout := cmd.OutOrStdout()
			if run, err := store.LastRun(cmd.Context()); err == nil {
				fmt.Fprintln(stdout, describeRun(run))
			} else if !errors.Is(err, journal.ErrRunNotFound) {
				return err
			}

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(stdout, "No commands recorded")
				return nil
			}
			fmt.Fprint(stdout, renderTable(
				[]string{"ID", "Received", "Session", "Bytes", "Command"},
				historyRows(entries),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of commands to show")
	return cmd
}

func describeRun(run *journal.Run) string {
	started := run.StartedAt.Local().Format(time.DateTime)
	if run.StoppedAt.IsZero() {
		return fmt.Sprintf("Last run: pid %d started %s (still running or crashed)", run.PID, started)
	}
	reason := run.Reason
	if reason == "" {
		reason = "unknown"
	}
	return fmt.Sprintf("Last run: pid %d started %s, stopped %s (%s)",
		run.PID, started, run.StoppedAt.Local().Format(time.DateTime), reason)
}

func historyRows(entries []journal.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		command := formatCommand(entry.Command)
		if entry.Sentinel {
			command += " (sentinel)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			entry.ReceivedAt.Local().Format(time.DateTime),
			shortSession(entry.SessionID),
			strconv.Itoa(entry.Size),
			command,
		})
	}
	return rows
}

// formatCommand quotes command bytes for a single table cell.
func formatCommand(raw []byte) string {
	quoted := strconv.Quote(string(raw))
	if len(quoted) <= historyCommandWidth {
		return quoted
	}
	return quoted[:historyCommandWidth-4] + "...\""
}

func shortSession(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
