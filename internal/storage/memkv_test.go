package storage

import (
	"context"
	"testing"
)

func TestMemKVGetSetDelete(t *testing.T) {
	ctx := context.Background()
	kv := NewMemKV()

	if got := kv.Get(ctx, "missing", StoreSettings, []byte("def")); string(got) != "def" {
		t.Fatalf("expected default for missing key, got %q", got)
	}

	kv.Set(ctx, "k1", StoreSettings, []byte("v1"), false)
	if got := kv.Get(ctx, "k1", StoreSettings, nil); string(got) != "v1" {
		t.Fatalf("expected v1, got %q", got)
	}

	kv.Delete(ctx, "k1", StoreSettings)
	if got := kv.Get(ctx, "k1", StoreSettings, []byte("def")); string(got) != "def" {
		t.Fatalf("expected default after delete, got %q", got)
	}
}

func TestMemKVJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemKV()

	type doc struct {
		Ask, Bid int
	}
	in := doc{Ask: 100, Bid: 90}
	kv.SetJSON(ctx, "price", StoreSettings, &in, false)

	var out doc
	kv.GetJSON(ctx, "price", StoreSettings, &out)
	if out != in {
		t.Fatalf("expected %+v, got %+v", in, out)
	}
}

func TestMemKVStoreIsolation(t *testing.T) {
	ctx := context.Background()
	kv := NewMemKV()
	kv.Set(ctx, "shared-key", StoreSettings, []byte("settings-value"), false)
	kv.Set(ctx, "shared-key", StoreCombatStats, []byte("combat-value"), false)

	if got := kv.Get(ctx, "shared-key", StoreSettings, nil); string(got) != "settings-value" {
		t.Fatalf("cross-store leak: got %q", got)
	}
	if got := kv.Get(ctx, "shared-key", StoreCombatStats, nil); string(got) != "combat-value" {
		t.Fatalf("cross-store leak: got %q", got)
	}
}
