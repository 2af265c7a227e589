package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewSealMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSealMetricsWithRegistry(reg)

	if m == nil {
		t.Fatal("expected non-nil SealMetrics")
	}

	m.RecordRun(OutcomeSealed, 0.1)
	m.RecordAbortRequest(AbortRequested)
	m.RecordSegmentsSealed(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	expectedMetrics := map[string]bool{
		"rivulet_seal_runs_total":            false,
		"rivulet_seal_run_latency_seconds":   false,
		"rivulet_seal_abort_requests_total":  false,
		"rivulet_seal_segments_sealed_total": false,
	}

	for _, family := range families {
		name := family.GetName()
		if _, ok := expectedMetrics[name]; ok {
			expectedMetrics[name] = true
		}
	}

	for name, found := range expectedMetrics {
		if !found {
			t.Errorf("expected metric %s to be registered", name)
		}
	}
}

func TestSealMetrics_RecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSealMetricsWithRegistry(reg)

	m.RecordRun(OutcomeSealed, 0.05)
	m.RecordRun(OutcomeRetry, 0.02)
	m.RecordRun(OutcomeRetry, 0.03)

	if v := getCounterValue(t, reg, "rivulet_seal_runs_total", "outcome", OutcomeSealed); v != 1 {
		t.Errorf("sealed runs = %v, want 1", v)
	}
	if v := getCounterValue(t, reg, "rivulet_seal_runs_total", "outcome", OutcomeRetry); v != 2 {
		t.Errorf("retry runs = %v, want 2", v)
	}
}

func TestSealMetrics_RecordAbortRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSealMetricsWithRegistry(reg)

	m.RecordAbortRequest(AbortRequested)
	m.RecordAbortRequest(AbortRequested)
	m.RecordAbortRequest(AbortRaced)

	if v := getCounterValue(t, reg, "rivulet_seal_abort_requests_total", "result", AbortRequested); v != 2 {
		t.Errorf("requested aborts = %v, want 2", v)
	}
	if v := getCounterValue(t, reg, "rivulet_seal_abort_requests_total", "result", AbortRaced); v != 1 {
		t.Errorf("raced aborts = %v, want 1", v)
	}
}

func TestSealMetrics_RecordSegmentsSealed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSealMetricsWithRegistry(reg)

	m.RecordSegmentsSealed(4)
	m.RecordSegmentsSealed(2)

	if v := getCounterValue(t, reg, "rivulet_seal_segments_sealed_total"); v != 6 {
		t.Errorf("segments sealed = %v, want 6", v)
	}
}

// getCounterValue returns the value of a counter, optionally filtered by a
// single label pair given as (name, value).
func getCounterValue(t *testing.T, reg *prometheus.Registry, name string, labelPair ...string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if len(labelPair) == 2 {
				matched := false
				for _, label := range metric.GetLabel() {
					if label.GetName() == labelPair[0] && label.GetValue() == labelPair[1] {
						matched = true
					}
				}
				if !matched {
					continue
				}
			}
			return metric.GetCounter().GetValue()
		}
	}

	t.Fatalf("metric %s not found", name)
	return 0
}
