package settings

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/storage"
)

func testManager() *Manager {
	return New(storage.NewMemKV(), DefaultSchema(), zap.NewNop())
}

func TestLoadSeedsDefaults(t *testing.T) {
	ctx := context.Background()
	m := testManager()
	m.Load(ctx, "char-1")

	v, ok := m.Get("dungeonTracker_enabled")
	if !ok || v != true {
		t.Fatalf("expected default true, got %v ok=%v", v, ok)
	}
}

func TestSetRejectsUnrecognizedKey(t *testing.T) {
	ctx := context.Background()
	m := testManager()
	m.Load(ctx, "char-1")

	if err := m.Set(ctx, "not_a_real_key", 1); err == nil {
		t.Fatal("expected error for unrecognized key")
	}
}

func TestSetFansOutToHandlers(t *testing.T) {
	ctx := context.Background()
	m := testManager()
	m.Load(ctx, "char-1")

	var seen any
	m.OnSettingChange("enhancementTracker_enabled", func(v any) { seen = v })

	if err := m.Set(ctx, "enhancementTracker_enabled", false); err != nil {
		t.Fatal(err)
	}
	if seen != false {
		t.Fatalf("expected handler to observe false, got %v", seen)
	}
}

func TestOffSettingChangeRemovesHandler(t *testing.T) {
	ctx := context.Background()
	m := testManager()
	m.Load(ctx, "char-1")

	calls := 0
	h := m.OnSettingChange("enhancementTracker_enabled", func(v any) { calls++ })
	m.OffSettingChange("enhancementTracker_enabled", h)

	m.Set(ctx, "enhancementTracker_enabled", false)
	if calls != 0 {
		t.Fatalf("expected 0 calls after removal, got %d", calls)
	}
}

func TestDependenciesSatisfiedAllMode(t *testing.T) {
	ctx := context.Background()
	m := testManager()
	m.Load(ctx, "char-1")

	m.Set(ctx, "dungeonTracker_enabled", false)
	if m.DependenciesSatisfied("dungeonTracker_showHibernationWarning") {
		t.Fatal("expected dependency to fail when parent disabled")
	}

	m.Set(ctx, "dungeonTracker_enabled", true)
	if !m.DependenciesSatisfied("dungeonTracker_showHibernationWarning") {
		t.Fatal("expected dependency to pass when parent enabled")
	}
}

func TestDependenciesSatisfiedAnyMode(t *testing.T) {
	ctx := context.Background()
	m := testManager()
	m.Load(ctx, "char-1")

	m.Set(ctx, "dungeonTracker_enabled", false)
	m.Set(ctx, "enhancementTracker_enabled", true)
	if !m.DependenciesSatisfied("chat_dungeonAnnotationTemplate") {
		t.Fatal("expected any-mode dependency to pass when one clause matches")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := testManager()
	m.Load(ctx, "char-1")
	m.Set(ctx, "enhancementTracker_enabled", false)

	blob, err := m.Export()
	if err != nil {
		t.Fatal(err)
	}

	m2 := testManager()
	m2.Load(ctx, "char-1")
	if err := m2.Import(ctx, blob); err != nil {
		t.Fatal(err)
	}

	blob2, err := m2.Export()
	if err != nil {
		t.Fatal(err)
	}
	if string(blob) != string(blob2) {
		t.Fatalf("expected export/import round trip to match:\n%s\nvs\n%s", blob, blob2)
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	ctx := context.Background()
	m := testManager()
	m.Load(ctx, "char-1")
	m.Set(ctx, "enhancementTracker_enabled", false)
	m.Reset(ctx)

	v, _ := m.Get("enhancementTracker_enabled")
	if v != true {
		t.Fatalf("expected reset to restore default true, got %v", v)
	}
}

func TestSyncToAllCharacters(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemKV()
	m1 := New(kv, DefaultSchema(), zap.NewNop())
	m1.Load(ctx, "char-1")

	m2 := New(kv, DefaultSchema(), zap.NewNop())
	m2.Load(ctx, "char-2")

	m1.Set(ctx, "enhancementTracker_enabled", false)
	if err := m1.SyncToAllCharacters(ctx); err != nil {
		t.Fatal(err)
	}

	m3 := New(kv, DefaultSchema(), zap.NewNop())
	m3.Load(ctx, "char-2")
	v, _ := m3.Get("enhancementTracker_enabled")
	if v != false {
		t.Fatalf("expected synced value false, got %v", v)
	}
}

func TestRenderTemplate(t *testing.T) {
	frags := []TemplateFragment{
		{Type: "text", Value: "Cleared "},
		{Type: "variable", Key: "dungeonName"},
		{Type: "text", Value: "!"},
	}
	out := RenderTemplate(frags, map[string]string{"dungeonName": "Chimerical Den"})
	if out != "Cleared Chimerical Den!" {
		t.Fatalf("unexpected render: %q", out)
	}
}
