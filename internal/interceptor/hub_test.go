package interceptor

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/config"
	"github.com/toolasha/agent/internal/storage"
)

func testHub() *Hub {
	return &Hub{
		cfg:     config.GameConfig{},
		kv:      storage.NewMemKV(),
		log:     zap.NewNop(),
		typed:   make(map[string][]HandlerFunc),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

func TestDispatchIgnoresNonObjectFrames(t *testing.T) {
	h := testHub()
	called := false
	h.SubscribeAll(func(string, map[string]any) { called = true })

	h.handleFrame([]byte(`"just a string"`))
	h.handleFrame([]byte(`[1,2,3]`))
	h.handleFrame([]byte(`not json at all`))

	if called {
		t.Fatal("expected non-object frames to be silently ignored")
	}
}

func TestDispatchOrderTypedThenWildcard(t *testing.T) {
	h := testHub()
	var order []string
	h.SubscribeAll(func(string, map[string]any) { order = append(order, "wildcard") })
	h.Subscribe("chat_message", func(string, map[string]any) { order = append(order, "typed-1") })
	h.Subscribe("chat_message", func(string, map[string]any) { order = append(order, "typed-2") })

	h.handleFrame([]byte(`{"type":"chat_message","text":"hi"}`))

	want := []string{"typed-1", "typed-2", "wildcard"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i, v := range want {
		if order[i] != v {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestSubscriberPanicDoesNotSuppressOthers(t *testing.T) {
	h := testHub()
	secondCalled := false
	h.Subscribe("x", func(string, map[string]any) { panic("boom") })
	h.Subscribe("x", func(string, map[string]any) { secondCalled = true })

	h.handleFrame([]byte(`{"type":"x"}`))

	if !secondCalled {
		t.Fatal("expected second subscriber to still run after first panicked")
	}
}

func TestPersistsWellKnownTypes(t *testing.T) {
	h := testHub()
	h.handleFrame([]byte(`{"type":"init_character_data","hp":10}`))

	var out map[string]any
	h.kv.GetJSON(context.Background(), storageKeyCharacterData, storage.StoreSettings, &out)
	if out["hp"] != float64(10) {
		t.Fatalf("expected persisted character data, got %+v", out)
	}
}

func TestRecoverClientDataReplaysPersistedSnapshot(t *testing.T) {
	h := testHub()
	snapshot := map[string]any{
		"itemDetailMap":   map[string]any{"1": "sword"},
		"actionDetailMap": map[string]any{"2": "chop"},
	}
	h.kv.SetJSON(context.Background(), storageKeyClientData, storage.StoreSettings, snapshot, true)

	var seen map[string]any
	h.SubscribeAll(func(msgType string, raw map[string]any) {
		if msgType == typeInitClientData {
			seen = raw
		}
	})

	h.RecoverClientData(context.Background())

	if seen == nil {
		t.Fatal("expected recovered client data to be dispatched")
	}
}

func TestRecoverClientDataNoopWithoutPriorSnapshot(t *testing.T) {
	h := testHub()
	called := false
	h.SubscribeAll(func(string, map[string]any) { called = true })

	h.RecoverClientData(context.Background())

	if called {
		t.Fatal("expected no dispatch when no prior snapshot exists")
	}
}

func TestRecoverClientDataSkippedOnceSeenOnWire(t *testing.T) {
	h := testHub()
	h.handleFrame([]byte(`{"type":"init_client_data","itemDetailMap":{},"actionDetailMap":{}}`))

	called := 0
	h.SubscribeAll(func(msgType string, raw map[string]any) {
		if msgType == typeInitClientData {
			called++
		}
	})

	h.RecoverClientData(context.Background())

	if called != 0 {
		t.Fatalf("expected recovery to be a no-op once a live frame was seen, got %d calls", called)
	}
}
