package stats

import (
	"math"
	"testing"
)

func TestPercentileInterpolation(t *testing.T) {
	samples := []float64{10, 20, 30, 40}
	got, ok := Percentile(samples, 50)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if math.Abs(got-25) > 1e-9 {
		t.Errorf("expected p50=25, got %v", got)
	}
}

func TestPercentileSingleValue(t *testing.T) {
	got, ok := Percentile([]float64{42}, 75)
	if !ok || got != 42 {
		t.Errorf("expected single-value passthrough, got %v ok=%v", got, ok)
	}
}

func TestPercentileEmpty(t *testing.T) {
	_, ok := Percentile(nil, 50)
	if ok {
		t.Error("expected ok=false for empty sample")
	}
}

func TestMaxDrawdownWithRecovery(t *testing.T) {
	series := []float64{100, 110, 95, 88, 105}
	got := MaxDrawdown(series)
	if math.Abs(got-(-0.20)) > 1e-9 {
		t.Errorf("expected -0.20, got %v", got)
	}
}

func TestMaxDrawdownMultiplePeaks(t *testing.T) {
	series := []float64{100, 90, 95, 110, 77, 100}
	got := MaxDrawdown(series)
	if math.Abs(got-(-0.30)) > 1e-9 {
		t.Errorf("expected -0.30, got %v", got)
	}
}

func TestMaxDrawdownMonotonicRise(t *testing.T) {
	series := []float64{10, 20, 30, 40}
	got := MaxDrawdown(series)
	if got != 0 {
		t.Errorf("expected 0 drawdown for monotonic rise, got %v", got)
	}
}
