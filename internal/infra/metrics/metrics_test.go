package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGetSingleton(t *testing.T) {
	if Get() != Get() {
		t.Fatal("expected Get to return singleton instance")
	}
}

func TestCountersUseLabels(t *testing.T) {
	m := Get()

	before := testutil.ToFloat64(m.scanAttempts.WithLabelValues("glow_analysis", "ok"))
	m.ScanAttempt("glow_analysis", "ok")
	after := testutil.ToFloat64(m.scanAttempts.WithLabelValues("glow_analysis", "ok"))
	if after-before != 1 {
		t.Fatalf("expected scan attempt counter to grow by 1, got %v", after-before)
	}

	m.PaywallShown("")
	if got := testutil.ToFloat64(m.paywallShown.WithLabelValues("unknown")); got < 1 {
		t.Fatalf("expected empty label to be recorded as unknown, got %v", got)
	}
}
