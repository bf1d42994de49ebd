package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// gathered returns the value of the sample of family name whose labels
// include all of want. Counters, gauges and histogram sample counts are
// supported.
func gathered(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return 0
}

func TestObserveBuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)

	m.ObserveBuild("succeeded", 3*time.Second, 120, 4)
	m.ObserveBuild("failed", time.Second, 0, 0)

	if got := gathered(t, reg, "lungrag_index_builds_total", map[string]string{"status": "succeeded"}); got != 1 {
		t.Errorf("succeeded builds = %v, want 1", got)
	}
	if got := gathered(t, reg, "lungrag_index_builds_total", map[string]string{"status": "failed"}); got != 1 {
		t.Errorf("failed builds = %v, want 1", got)
	}
	if got := gathered(t, reg, "lungrag_index_entries", nil); got != 120 {
		t.Errorf("index entries = %v, want 120", got)
	}
	if got := gathered(t, reg, "lungrag_ocr_pages_total", nil); got != 4 {
		t.Errorf("ocr pages = %v, want 4", got)
	}
}

func TestObserveQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)

	m.ObserveQuery("success", 200*time.Millisecond)
	m.ObserveQuery("success", 300*time.Millisecond)
	m.ObserveQuery("upstream_error", time.Second)

	if got := gathered(t, reg, "lungrag_queries_total", map[string]string{"outcome": "success"}); got != 2 {
		t.Errorf("success queries = %v, want 2", got)
	}
	if got := gathered(t, reg, "lungrag_query_latency_seconds", nil); got != 3 {
		t.Errorf("latency observations = %v, want 3", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetIndexEntries(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "lungrag_index_entries 7") {
		t.Errorf("scrape output missing index gauge:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("scrape output missing Go runtime metrics")
	}
}

func TestNew_Independent(t *testing.T) {
	// Each Metrics owns its registry, so constructing two must not panic.
	_ = New()
	_ = New()
}
