package observers

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anggasct/statum"
)

// MetricsObserver exports prometheus metrics about transitions
type MetricsObserver struct {
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	entries     *prometheus.CounterVec
	duration    *prometheus.HistogramVec

	mutex   sync.Mutex
	started map[string]time.Time
}

// NewMetricsObserver creates the collectors and registers them with reg
func NewMetricsObserver(reg prometheus.Registerer, namespace string) (*MetricsObserver, error) {
	o := &MetricsObserver{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of performed transitions",
			},
			[]string{"machine", "transition"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transition_failures_total",
				Help:      "Total number of failed transitions by error code",
			},
			[]string{"machine", "code"},
		),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_entries_total",
				Help:      "Total number of state entries",
			},
			[]string{"machine", "state"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transition_duration_seconds",
				Help:      "Duration from state exit to state entry",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"machine", "transition"},
		),
		started: make(map[string]time.Time),
	}
	for _, c := range []prometheus.Collector{o.transitions, o.failures, o.entries, o.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func key(m *statum.StateMachine) string {
	return m.Context().ID(true)
}

// Hooks returns the pipeline hooks of the observer
func (o *MetricsObserver) Hooks() statum.Hooks {
	return statum.Hooks{
		BeforeExit: func(m *statum.StateMachine, _ *statum.Transition, _ string) error {
			o.mutex.Lock()
			defer o.mutex.Unlock()
			o.started[key(m)] = time.Now()
			return nil
		},
		AfterEnter: func(m *statum.StateMachine, t *statum.Transition, _ string) error {
			machine := m.Name()
			o.transitions.WithLabelValues(machine, t.Name()).Inc()
			o.entries.WithLabelValues(machine, t.To().Name()).Inc()

			o.mutex.Lock()
			start, ok := o.started[key(m)]
			delete(o.started, key(m))
			o.mutex.Unlock()
			if ok {
				o.duration.WithLabelValues(machine, t.Name()).Observe(time.Since(start).Seconds())
			}
			return nil
		},
		OnFailure: func(m *statum.StateMachine, _ *statum.Transition, _ string, err error) {
			o.failures.WithLabelValues(m.Name(), statum.GetErrorCode(err).String()).Inc()
			o.mutex.Lock()
			defer o.mutex.Unlock()
			delete(o.started, key(m))
		},
	}
}
