package dbus

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmylchreest/regbus/internal/registry"
)

// Metrics tracks service loop activity. A nil *Metrics records nothing.
type Metrics struct {
	mu sync.Mutex

	calls      *prometheus.CounterVec
	signals    *prometheus.CounterVec
	commands   *prometheus.CounterVec
	iterations prometheus.Counter
	categories prometheus.GaugeFunc

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "regbus",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates loop collectors. The categories gauge reads reg on
// every scrape, from the scraping goroutine.
func NewMetrics(registerer prometheus.Registerer, reg *registry.Registry) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer: registerer,
		calls:      newCounterVec("bus_calls_total", "Bus method calls serviced by the worker", []string{"member", "result"}),
		signals:    newCounterVec("bus_signals_total", "Bus signals serviced by the worker", []string{"name"}),
		commands:   newCounterVec("commands_total", "Channel commands applied by the worker", []string{"op", "result"}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regbus",
			Name:      "loop_iterations_total",
			Help:      "Service loop iterations",
		}),
		categories: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "regbus",
			Name:      "categories",
			Help:      "Categories currently in the registry",
		}, func() float64 {
			return float64(reg.Len())
		}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.calls,
		m.signals,
		m.commands,
		m.iterations,
		m.categories,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) observeResult(res Result) {
	if m == nil {
		return
	}
	m.iterations.Inc()

	switch res.Kind {
	case ResultCall:
		m.calls.WithLabelValues(res.Member, resultLabel(res.Err)).Inc()
	case ResultSignal:
		m.signals.WithLabelValues(res.Member).Inc()
	}
}

func (m *Metrics) observeCommand(op registry.Op, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(opLabel(op), resultLabel(err)).Inc()
}

// opLabel keeps the op label bounded to the defined operations.
func opLabel(op registry.Op) string {
	if !op.Known() {
		return "unknown"
	}
	return string(op)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
