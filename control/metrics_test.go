// Author: momentics <momentics@gmail.com>
package control

import "testing"

func TestRegistry_CountersAccumulate(t *testing.T) {
	r := NewRegistry()
	r.IncAccepted()
	r.IncAccepted()
	r.IncAborted()
	r.SetActive(1)
	r.AddBytesRead(100)
	r.AddBytesWritten(200)
	r.SetDeferredDepth(3)

	s := r.Snapshot()
	if s.Accepted != 2 {
		t.Fatalf("expected accepted=2, got %d", s.Accepted)
	}
	if s.Aborted != 1 {
		t.Fatalf("expected aborted=1, got %d", s.Aborted)
	}
	if s.Active != 1 {
		t.Fatalf("expected active=1, got %d", s.Active)
	}
	if s.BytesRead != 100 || s.BytesWritten != 200 {
		t.Fatalf("expected byte counters 100/200, got %d/%d", s.BytesRead, s.BytesWritten)
	}
	if s.DeferredDepth != 3 {
		t.Fatalf("expected deferred depth 3, got %d", s.DeferredDepth)
	}
}

func TestController_ProbesReflectLiveState(t *testing.T) {
	cfg := NewConfigStore(DefaultConfig())
	reg := NewRegistry()
	c := NewController(cfg, reg)

	reg.IncAccepted()
	dump := c.Probes.DumpState()

	metrics, ok := dump["metrics"].(Snapshot)
	if !ok {
		t.Fatalf("expected metrics probe to return a Snapshot, got %T", dump["metrics"])
	}
	if metrics.Accepted != 1 {
		t.Fatalf("expected metrics probe to reflect live accepted count, got %d", metrics.Accepted)
	}
	if _, ok := dump["config"].(Config); !ok {
		t.Fatalf("expected config probe to return a Config, got %T", dump["config"])
	}
}
