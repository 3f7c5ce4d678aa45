package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue finds a counter sample by full name and label set
func counterValue(t *testing.T, reg *prom.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRecorder_CountsByLabel(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewRecorder(reg)

	r.IncTick(ResultOK)
	r.IncTick(ResultOK)
	r.IncTick(ResultError)
	r.ObserveTickDuration(20 * time.Millisecond)
	r.IncEntry(ResultChanged)
	r.IncStateWrite("scheduler", KindApply)
	r.IncCASConflict()

	assert.Equal(t, 2.0, counterValue(t, reg, "pinmask_scheduler_ticks_total", map[string]string{"result": ResultOK}))
	assert.Equal(t, 1.0, counterValue(t, reg, "pinmask_scheduler_ticks_total", map[string]string{"result": ResultError}))
	assert.Equal(t, 1.0, counterValue(t, reg, "pinmask_schedule_entries_total", map[string]string{"result": ResultChanged}))
	assert.Equal(t, 1.0, counterValue(t, reg, "pinmask_state_writes_total", map[string]string{"source": "scheduler", "kind": KindApply}))
	assert.Equal(t, 1.0, counterValue(t, reg, "pinmask_state_cas_conflicts_total", nil))
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.IncTick(ResultOK)
		r.ObserveTickDuration(time.Second)
		r.IncEntry(ResultError)
		r.IncStateWrite("api", KindSet)
		r.IncCASConflict()
	})
}

func TestRecorder_HandlerExposesMetrics(t *testing.T) {
	r := NewRecorder(nil)
	r.IncCASConflict()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pinmask_state_cas_conflicts_total 1")
}
