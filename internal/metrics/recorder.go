// Package metrics counts channel server activity with Prometheus collectors
// and exports them through the node_exporter textfile format. The daemon has
// no network surface, so nothing is served over HTTP.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"

	"shmath/internal/fifo"
)

const namespace = "shmathd"

// Recorder implements fifo.Observer.
type Recorder struct {
	registry    *prom.Registry
	commands    *prom.CounterVec
	bytes       prom.Counter
	sizes       prom.Histogram
	sessions    prom.Counter
	readErrors  prom.Counter
	transitions *prom.CounterVec
	state       *prom.GaugeVec
}

var _ fifo.Observer = (*Recorder)(nil)

// NewRecorder registers the collectors on reg, or on a fresh registry when reg is nil.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		registry: reg,
		commands: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands dispatched to the handler by kind",
		}, []string{"kind"}),
		bytes: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "command_bytes_total",
			Help:      "Bytes dispatched to the handler",
		}),
		sizes: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "command_size_bytes",
			Help:      "Size of dispatched commands",
			Buckets:   prom.ExponentialBuckets(4, 4, 6),
		}),
		sessions: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "client_sessions_total",
			Help:      "Completed client sessions (writer groups) on the pipe",
		}),
		readErrors: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      "Sessions that ended with a read error instead of end-of-stream",
		}),
		transitions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Lifecycle transitions by target state",
		}, []string{"to"}),
		state: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current lifecycle state (1 for the active state)",
		}, []string{"state"}),
	}
	reg.MustRegister(r.commands, r.bytes, r.sizes, r.sessions, r.readErrors, r.transitions, r.state)
	for _, s := range []fifo.State{fifo.StateStarting, fifo.StateAwaitingClient, fifo.StateServing, fifo.StateShuttingDown, fifo.StateStopped} {
		r.state.WithLabelValues(s.String()).Set(0)
	}
	r.state.WithLabelValues(fifo.StateStarting.String()).Set(1)
	return r
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prom.Registry { return r.registry }

func (r *Recorder) StateChanged(from, to fifo.State) {
	r.transitions.WithLabelValues(to.String()).Inc()
	r.state.WithLabelValues(from.String()).Set(0)
	r.state.WithLabelValues(to.String()).Set(1)
}

func (r *Recorder) CommandDispatched(size int, sentinel bool) {
	kind := "command"
	if sentinel {
		kind = "sentinel"
	}
	r.commands.WithLabelValues(kind).Inc()
	r.bytes.Add(float64(size))
	r.sizes.Observe(float64(size))
}

func (r *Recorder) ClientDisconnected(err error) {
	r.sessions.Inc()
	if err != nil {
		r.readErrors.Inc()
	}
}

// WriteTextfile atomically writes the current metric values to path.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure metrics directory: %w", err)
	}
	if err := prom.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
