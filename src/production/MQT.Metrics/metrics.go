package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels for scheduler ticks and schedule entries
const (
	ResultOK        = "ok"
	ResultSkipped   = "skipped"
	ResultError     = "error"
	ResultChanged   = "changed"
	ResultUnchanged = "unchanged"
)

// Write kinds for state_writes_total
const (
	KindSet   = "set"
	KindApply = "apply"
)

// Recorder holds the service's Prometheus collectors. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry     *prom.Registry
	ticks        *prom.CounterVec
	tickDuration prom.Histogram
	entries      *prom.CounterVec
	stateWrites  *prom.CounterVec
	casConflicts prom.Counter
}

// NewRecorder registers all collectors on reg, or on a fresh registry when
// reg is nil
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	r := &Recorder{
		registry: reg,
		ticks: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pinmask",
			Name:      "scheduler_ticks_total",
			Help:      "Scheduler ticks by result",
		}, []string{"result"}),
		tickDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "pinmask",
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Time spent applying the entries due in one minute",
			Buckets:   prom.DefBuckets,
		}),
		entries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pinmask",
			Name:      "schedule_entries_total",
			Help:      "Applied schedule entries by outcome",
		}, []string{"result"}),
		stateWrites: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pinmask",
			Name:      "state_writes_total",
			Help:      "Persisted device state writes",
		}, []string{"source", "kind"}),
		casConflicts: prom.NewCounter(prom.CounterOpts{
			Namespace: "pinmask",
			Name:      "state_cas_conflicts_total",
			Help:      "Compare-and-swap attempts that lost to a concurrent write",
		}),
	}
	reg.MustRegister(r.ticks, r.tickDuration, r.entries, r.stateWrites, r.casConflicts)
	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prom.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (r *Recorder) IncTick(result string) {
	if r == nil {
		return
	}
	r.ticks.WithLabelValues(result).Inc()
}

func (r *Recorder) ObserveTickDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.tickDuration.Observe(d.Seconds())
}

func (r *Recorder) IncEntry(result string) {
	if r == nil {
		return
	}
	r.entries.WithLabelValues(result).Inc()
}

func (r *Recorder) IncStateWrite(source, kind string) {
	if r == nil {
		return
	}
	r.stateWrites.WithLabelValues(source, kind).Inc()
}

func (r *Recorder) IncCASConflict() {
	if r == nil {
		return
	}
	r.casConflicts.Inc()
}
