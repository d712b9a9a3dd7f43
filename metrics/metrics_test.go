package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandler(t *testing.T) {
	m := New()
	m.Fired.Inc()
	m.Fired.Inc()
	m.NotifyErrors.WithLabelValues("permission").Inc()

	if got := testutil.ToFloat64(m.Fired); got != 2 {
		t.Errorf("fired = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"mymed_trigger_fired_total 2",
		`mymed_notify_errors_total{kind="permission"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestNewIsolated(t *testing.T) {
	// separate registries never collide
	New()
	New()
}
