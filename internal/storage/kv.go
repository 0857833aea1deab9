package storage

import "context"

// KV is the API contract consumers (Settings, Market cache, feature state)
// depend on, satisfied by *Storage in production and by MemKV in tests —
// spec §4.3's get/set/getJSON/setJSON/delete surface.
type KV interface {
	Get(ctx context.Context, key, store string, def []byte) []byte
	GetJSON(ctx context.Context, key, store string, def any) any
	Set(ctx context.Context, key, store string, value []byte, immediate bool) bool
	SetJSON(ctx context.Context, key, store string, value any, immediate bool) bool
	Delete(ctx context.Context, key, store string) bool
}

var _ KV = (*Storage)(nil)
