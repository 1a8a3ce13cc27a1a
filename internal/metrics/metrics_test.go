package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("reading metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCountersIncrement(t *testing.T) {
	before := counterValue(t, CacheHits)
	CacheHits.Inc()
	if got := counterValue(t, CacheHits); got != before+1 {
		t.Errorf("cache hits went from %v to %v, want +1", before, got)
	}

	c := RequestsTotal.WithLabelValues("records", "success")
	before = counterValue(t, c)
	c.Inc()
	if got := counterValue(t, c); got != before+1 {
		t.Errorf("requests counter went from %v to %v, want +1", before, got)
	}
}

func TestGaugeSet(t *testing.T) {
	CacheEntries.Set(7)
	var m dto.Metric
	if err := CacheEntries.Write(&m); err != nil {
		t.Fatal(err)
	}
	if got := m.GetGauge().GetValue(); got != 7 {
		t.Errorf("gauge = %v, want 7", got)
	}
}

func TestHistogramObserve(t *testing.T) {
	PagesFetched.Observe(3)

	// Histograms are only reachable through the registry.
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, fam := range families {
		if fam.GetName() == "relay_pages_fetched" {
			if fam.GetMetric()[0].GetHistogram().GetSampleCount() == 0 {
				t.Error("observation not recorded")
			}
			return
		}
	}
	t.Error("relay_pages_fetched not registered")
}
