package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"shmath/internal/fifo"
)

func findMetric(t *testing.T, reg *prom.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return nil
}

func TestRecorderCountsActivity(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewRecorder(reg)

	r.StateChanged(fifo.StateStarting, fifo.StateAwaitingClient)
	r.StateChanged(fifo.StateAwaitingClient, fifo.StateServing)
	r.CommandDispatched(5, false)
	r.CommandDispatched(4, true)
	r.ClientDisconnected(nil)
	r.ClientDisconnected(errors.New("read failed"))

	if got := findMetric(t, reg, "shmathd_commands_total", map[string]string{"kind": "command"}).GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected 1 command, got %v", got)
	}
	if got := findMetric(t, reg, "shmathd_commands_total", map[string]string{"kind": "sentinel"}).GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected 1 sentinel, got %v", got)
	}
	if got := findMetric(t, reg, "shmathd_command_bytes_total", nil).GetCounter().GetValue(); got != 9 {
		t.Fatalf("expected 9 bytes, got %v", got)
	}
	if got := findMetric(t, reg, "shmathd_client_sessions_total", nil).GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 sessions, got %v", got)
	}
	if got := findMetric(t, reg, "shmathd_read_errors_total", nil).GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected 1 read error, got %v", got)
	}
	if got := findMetric(t, reg, "shmathd_state", map[string]string{"state": "serving"}).GetGauge().GetValue(); got != 1 {
		t.Fatalf("expected serving gauge 1, got %v", got)
	}
	if got := findMetric(t, reg, "shmathd_state", map[string]string{"state": "awaiting_client"}).GetGauge().GetValue(); got != 0 {
		t.Fatalf("expected awaiting_client gauge 0, got %v", got)
	}
}

func TestRecorderWriteTextfile(t *testing.T) {
	r := NewRecorder(nil)
	r.CommandDispatched(3, false)
	path := filepath.Join(t.TempDir(), "textfile", "shmathd.prom")

	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `shmathd_commands_total{kind="command"} 1`) {
		t.Fatalf("unexpected textfile contents:\n%s", data)
	}
	if err := r.WriteTextfile(""); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
}
