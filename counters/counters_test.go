package counters

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObjectHashCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(ObjectHashHit)
	ObjectHashHit.Inc()
	after := testutil.ToFloat64(ObjectHashHit)
	if after != before+1 {
		t.Fatalf("expected ObjectHashHit to increment by 1, got %v -> %v", before, after)
	}
}

func TestModuleReloadVecLabels(t *testing.T) {
	ModuleReload.WithLabelValues("destination", "ok").Inc()
	got := testutil.ToFloat64(ModuleReload.WithLabelValues("destination", "ok"))
	if got < 1 {
		t.Fatalf("expected module_reload_n{module=destination,outcome=ok} to be at least 1, got %v", got)
	}
}
