// Package prom exports lazycache hook events as Prometheus metrics.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/lazycache"
)

// Hooks implements lazycache.Hooks with Prometheus counters and a load-cost histogram.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Hooks struct {
	loads     *prometheus.CounterVec // result: admitted|gated|dropped_*|ok|failed
	loadCost  prometheus.Histogram
	fallbacks *prometheus.CounterVec // mode: scalar|hash
	errs      *prometheus.CounterVec // kind, op
	conflicts prometheus.Counter
}

var _ lazycache.Hooks = (*Hooks)(nil)

// New constructs the Prometheus hooks.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &Hooks{
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "loads_total",
				Help:        "Background load attempts by result",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		loadCost: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "load_cost_seconds",
			Help:        "Time from producer start to store write for background loads",
			ConstLabels: constLabels,
			Buckets:     []float64{.005, .025, .1, .5, 1, 2, 5, 15, 60},
		}),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "fallbacks_total",
				Help:        "Synchronous fallbacks written back to the store",
				ConstLabels: constLabels,
			},
			[]string{"mode"},
		),
		errs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "errors_total",
				Help:        "Errors downgraded to misses, by kind and operation",
				ConstLabels: constLabels,
			},
			[]string{"kind", "op"},
		),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "mode_conflicts_total",
			Help:        "Session reads rejected for binding in the other mode",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(h.loads, h.loadCost, h.fallbacks, h.errs, h.conflicts)
	return h
}

// RegisterGateSize exports the number of lock keys tracked by the registry.
// size is typically c.Gate().Len.
func RegisterGateSize(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels, size func() int) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   ns,
		Subsystem:   sub,
		Name:        "gate_keys",
		Help:        "Lock keys tracked by the load registry",
		ConstLabels: constLabels,
	}, func() float64 { return float64(size()) }))
}

func (h *Hooks) LoadAdmitted(string) { h.loads.WithLabelValues("admitted").Inc() }
func (h *Hooks) LoadGated(string)    { h.loads.WithLabelValues("gated").Inc() }

func (h *Hooks) LoadDropped(_, reason string) {
	h.loads.WithLabelValues("dropped_" + reason).Inc()
}

func (h *Hooks) LoadCompleted(_ string, cost time.Duration, failed bool) {
	h.loadCost.Observe(cost.Seconds())
	if failed {
		h.loads.WithLabelValues("failed").Inc()
		return
	}
	h.loads.WithLabelValues("ok").Inc()
}

func (h *Hooks) FallbackFired(_, field string) {
	if field == "" {
		h.fallbacks.WithLabelValues("scalar").Inc()
		return
	}
	h.fallbacks.WithLabelValues("hash").Inc()
}

func (h *Hooks) StoreError(op, _ string, err error) {
	h.errs.WithLabelValues(lazycache.ErrorKind(err), op).Inc()
}

func (h *Hooks) CodecError(op, _ string, err error) {
	h.errs.WithLabelValues(lazycache.ErrorKind(err), op).Inc()
}

func (h *Hooks) ProducerError(_, _ string, err error) {
	h.errs.WithLabelValues(lazycache.ErrorKind(err), "produce").Inc()
}

func (h *Hooks) ModeConflict(string, string, string) { h.conflicts.Inc() }
