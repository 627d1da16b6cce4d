package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QueryMetrics instruments the interactive query path.
type QueryMetrics struct {
	// Queries counts completed queries by outcome: hit, miss, error.
	Queries *prometheus.CounterVec
	// Remote counts queries dispatched to a remote stub.
	Remote prometheus.Counter
	// Duration observes end-to-end query latency.
	Duration prometheus.Histogram
}

// NewQueryMetrics creates and registers the query instruments.
func NewQueryMetrics(registry *Registry) (*QueryMetrics, error) {
	m := &QueryMetrics{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "query",
			Name:      "total",
			Help:      "Completed interactive queries by outcome",
		}, []string{"outcome"}),
		Remote: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "query",
			Name:      "remote_total",
			Help:      "Queries dispatched to a remote host",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end interactive query latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if registry == nil {
		return m, nil // instruments work unregistered, for tests
	}
	if err := registry.Register("query", "total", m.Queries); err != nil {
		return nil, err
	}
	if err := registry.Register("query", "remote_total", m.Remote); err != nil {
		return nil, err
	}
	if err := registry.Register("query", "duration_seconds", m.Duration); err != nil {
		return nil, err
	}
	return m, nil
}

// AutopilotMetrics instruments the scaling control loop.
type AutopilotMetrics struct {
	// State is a one-hot gauge over the autopilot states.
	State *prometheus.GaugeVec
	// ThreadCount is the observed worker count.
	ThreadCount prometheus.Gauge
	// TargetThreadCount is the computed optimal worker count.
	TargetThreadCount prometheus.Gauge
	// AccumulatedLag is the total partition lag across workers.
	AccumulatedLag prometheus.Gauge
	// Decisions counts run outcomes by decided state.
	Decisions *prometheus.CounterVec
}

// NewAutopilotMetrics creates and registers the autopilot instruments.
func NewAutopilotMetrics(registry *Registry) (*AutopilotMetrics, error) {
	m := &AutopilotMetrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "autopilot",
			Name:      "state",
			Help:      "Current autopilot state (one-hot by state label)",
		}, []string{"state"}),
		ThreadCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "autopilot",
			Name:      "thread_count",
			Help:      "Observed stream worker count",
		}),
		TargetThreadCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "autopilot",
			Name:      "target_thread_count",
			Help:      "Computed optimal stream worker count",
		}),
		AccumulatedLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "autopilot",
			Name:      "accumulated_lag",
			Help:      "Total partition lag across workers",
		}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "autopilot",
			Name:      "decisions_total",
			Help:      "Autopilot run outcomes by decided state",
		}, []string{"state"}),
	}

	if registry == nil {
		return m, nil
	}
	if err := registry.Register("autopilot", "state", m.State); err != nil {
		return nil, err
	}
	if err := registry.Register("autopilot", "thread_count", m.ThreadCount); err != nil {
		return nil, err
	}
	if err := registry.Register("autopilot", "target_thread_count", m.TargetThreadCount); err != nil {
		return nil, err
	}
	if err := registry.Register("autopilot", "accumulated_lag", m.AccumulatedLag); err != nil {
		return nil, err
	}
	if err := registry.Register("autopilot", "decisions_total", m.Decisions); err != nil {
		return nil, err
	}
	return m, nil
}

// SetState flips the one-hot state gauge to the named state.
func (m *AutopilotMetrics) SetState(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1.0
		}
		m.State.WithLabelValues(s).Set(v)
	}
}
