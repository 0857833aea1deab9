package featurereg

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/character"
	"github.com/toolasha/agent/internal/interceptor"
)

// TestMain leak-checks the background health-check/retry goroutine
// runInitFlow starts per character-init event — every one of them must
// have finished sleeping and exited by the time the package's tests
// complete.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeHub struct {
	handlers map[string][]interceptor.HandlerFunc
}

func newFakeHub() *fakeHub { return &fakeHub{handlers: make(map[string][]interceptor.HandlerFunc)} }

func (f *fakeHub) Subscribe(msgType string, fn interceptor.HandlerFunc) {
	f.handlers[msgType] = append(f.handlers[msgType], fn)
}

func (f *fakeHub) fire(msgType string, frame map[string]any) {
	for _, fn := range f.handlers[msgType] {
		fn(msgType, frame)
	}
}

type fakeSettings struct {
	mu     sync.Mutex
	values map[string]any
}

func (s *fakeSettings) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

type countingFeature struct {
	mu         sync.Mutex
	key        string
	initCount  int
	disableCnt int
	initErr    error
	healthy    bool
}

func (f *countingFeature) Key() string      { return f.key }
func (f *countingFeature) Name() string     { return f.key }
func (f *countingFeature) Category() string { return "test" }

func (f *countingFeature) Initialize(ctx context.Context, res *Resources) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCount++
	return f.initErr
}

func (f *countingFeature) Disable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disableCnt++
}

func (f *countingFeature) HealthCheck() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *countingFeature) initializations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCount
}

func (f *countingFeature) disables() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disableCnt
}

func TestInitFlowInitializesEnabledFeatures(t *testing.T) {
	hub := newFakeHub()
	charMgr := character.New(hub, zap.NewNop())
	settings := &fakeSettings{values: map[string]any{"dungeon_enabled": true}}
	reg := New(charMgr, settings, zap.NewNop())

	f := &countingFeature{key: "dungeon", healthy: true}
	reg.RegisterFeatures([]Feature{f})

	hub.fire("init_character_data", map[string]any{"characterId": "char-1"})

	if f.initializations() != 1 {
		t.Fatalf("expected 1 initialization, got %d", f.initializations())
	}
}

func TestDisabledFeatureSkipsInitialize(t *testing.T) {
	hub := newFakeHub()
	charMgr := character.New(hub, zap.NewNop())
	settings := &fakeSettings{values: map[string]any{"dungeon_enabled": false}}
	reg := New(charMgr, settings, zap.NewNop())

	f := &countingFeature{key: "dungeon"}
	reg.RegisterFeatures([]Feature{f})

	hub.fire("init_character_data", map[string]any{"characterId": "char-1"})

	if f.initializations() != 0 {
		t.Fatalf("expected feature to be skipped, got %d initializations", f.initializations())
	}
}

func TestReInitGuardIsNoOp(t *testing.T) {
	hub := newFakeHub()
	charMgr := character.New(hub, zap.NewNop())
	settings := &fakeSettings{values: map[string]any{}}
	reg := New(charMgr, settings, zap.NewNop())

	f := &countingFeature{key: "dungeon", healthy: true}
	reg.RegisterFeatures([]Feature{f})

	hub.fire("init_character_data", map[string]any{"characterId": "char-1"})
	reg.runInitFlow(context.Background())
	reg.runInitFlow(context.Background())

	if f.initializations() != 1 {
		t.Fatalf("expected re-entry guard to keep initializations at 1, got %d", f.initializations())
	}
}

func TestCharacterSwitchDisablesThenReinitializes(t *testing.T) {
	hub := newFakeHub()
	charMgr := character.New(hub, zap.NewNop())
	settings := &fakeSettings{values: map[string]any{}}
	reg := New(charMgr, settings, zap.NewNop())

	f := &countingFeature{key: "dungeon", healthy: true}
	reg.RegisterFeatures([]Feature{f})

	hub.fire("init_character_data", map[string]any{"characterId": "char-1"})
	hub.fire("init_character_data", map[string]any{"characterId": "char-2"})

	if f.disables() != 1 {
		t.Fatalf("expected exactly 1 disable on character switch, got %d", f.disables())
	}
	if f.initializations() != 2 {
		t.Fatalf("expected re-initialize after switch, got %d", f.initializations())
	}
}

func TestFailedInitRetriesAfterDelay(t *testing.T) {
	hub := newFakeHub()
	charMgr := character.New(hub, zap.NewNop())
	settings := &fakeSettings{values: map[string]any{}}
	reg := New(charMgr, settings, zap.NewNop())

	f := &countingFeature{key: "dungeon", initErr: fmt.Errorf("boom")}
	reg.RegisterFeatures([]Feature{f})

	hub.fire("init_character_data", map[string]any{"characterId": "char-1"})

	// allow the background health-check + retry goroutine to run
	time.Sleep(healthCheckDelay + retryDelay + 200*time.Millisecond)

	if f.initializations() < 2 {
		t.Fatalf("expected at least 2 init attempts (initial + retry), got %d", f.initializations())
	}
}
