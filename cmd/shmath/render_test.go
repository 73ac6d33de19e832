package main

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"shmath/internal/journal"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestStatusKindFromSeverity(t *testing.T) {
	cases := map[string]statusKind{
		"ok":      statusOK,
		" WARN ":  statusWarn,
		"warning": statusWarn,
		"error":   statusError,
		"info":    statusInfo,
		"":        statusInfo,
	}
	for in, want := range cases {
		if got := statusKindFromSeverity(in); got != want {
			t.Fatalf("statusKindFromSeverity(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFormatCommand(t *testing.T) {
	if got := formatCommand([]byte("ping\n")); got != `"ping\n"` {
		t.Fatalf("unexpected %q", got)
	}
	long := formatCommand([]byte(strings.Repeat("x", 200)))
	if len(long) != historyCommandWidth || !strings.HasSuffix(long, `..."`) {
		t.Fatalf("expected truncated cell, got %q (%d)", long, len(long))
	}
}

func TestHistoryRows(t *testing.T) {
	rows := historyRows([]journal.Entry{
		{ID: 7, SessionID: "0123456789abcdef", ReceivedAt: time.Now(), Command: []byte("exit"), Size: 4, Sentinel: true},
	})
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	row := rows[0]
	if row[0] != "7" || row[2] != "01234567" || row[3] != "4" || row[4] != `"exit" (sentinel)` {
		t.Fatalf("unexpected row %q", row)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "only") || !strings.HasSuffix(out, "\n") {
		t.Fatalf("unexpected table:\n%s", out)
	}
}
