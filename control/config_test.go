// Author: momentics <momentics@gmail.com>
package control

import "testing"

func TestConfig_NormalizeFillsDefaults(t *testing.T) {
	c := Config{}.Normalize()
	d := DefaultConfig()
	if c.ListenBacklog != d.ListenBacklog {
		t.Fatalf("expected default backlog %d, got %d", d.ListenBacklog, c.ListenBacklog)
	}
	if c.WriteHighWaterMark != d.WriteHighWaterMark {
		t.Fatalf("expected default high water mark %d, got %d", d.WriteHighWaterMark, c.WriteHighWaterMark)
	}
}

func TestConfig_NormalizePreservesOverrides(t *testing.T) {
	c := Config{ListenBacklog: 128}.Normalize()
	if c.ListenBacklog != 128 {
		t.Fatalf("expected override to survive normalization, got %d", c.ListenBacklog)
	}
}

func TestConfigStore_UpdateNotifiesListeners(t *testing.T) {
	store := NewConfigStore(DefaultConfig())
	seen := make(chan Config, 1)
	store.OnReload(func(c Config) { seen <- c })

	store.Update(Config{ListenBacklog: 256})

	select {
	case c := <-seen:
		if c.ListenBacklog != 256 {
			t.Fatalf("expected listener to see updated backlog 256, got %d", c.ListenBacklog)
		}
	default:
		t.Fatal("expected OnReload listener to fire synchronously")
	}
	if store.Snapshot().ListenBacklog != 256 {
		t.Fatalf("expected snapshot to reflect update")
	}
}
