package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/storage"
)

const knownCharacterIDsKey = "known_character_ids"

// ChangeHandler is invoked synchronously after a successful write to key,
// with the new value (spec §4.4 "invoked with the new value synchronously
// after a successful write").
type ChangeHandler func(value any)

// Manager owns the settings document for the currently active character.
// Settings are per-character: the storage key includes the character id
// (spec §4.4).
type Manager struct {
	kv     storage.KV
	log    *zap.Logger
	schema Schema

	mu          sync.Mutex
	characterID string
	values      map[string]any
	handlers    map[string][]registeredHandler
	nextHandle  int
}

// Handle identifies a registered ChangeHandler for later removal via
// OffSettingChange — function values aren't comparable in Go, so callers
// retain the Handle returned by OnSettingChange instead of the closure.
type Handle int

type registeredHandler struct {
	handle Handle
	fn     ChangeHandler
}

func New(kv storage.KV, schema Schema, log *zap.Logger) *Manager {
	return &Manager{
		kv:       kv,
		log:      log,
		schema:   schema,
		values:   schema.Defaults(),
		handlers: make(map[string][]registeredHandler),
	}
}

func storageKey(characterID string) string {
	return fmt.Sprintf("settings_%s", characterID)
}

// Load switches the manager onto characterID, reading its persisted
// document (seeded with schema defaults for any missing key) and
// registering the id in the known-character-ids set used by SyncToAll.
func (m *Manager) Load(ctx context.Context, characterID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.characterID = characterID
	stored := make(map[string]any)
	m.kv.GetJSON(ctx, storageKey(characterID), storage.StoreSettings, &stored)

	merged := m.schema.Defaults()
	for k, v := range stored {
		merged[k] = v
	}
	m.values = merged

	m.addKnownCharacter(ctx, characterID)
}

// Get returns the current value for key, or the schema default / false if
// key is unrecognized.
func (m *Manager) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// Set writes key=value, persists it, and fans out to registered handlers.
// Unrecognized keys are rejected (schema enumerates every recognized key,
// spec §3 "Setting").
func (m *Manager) Set(ctx context.Context, key string, value any) error {
	if _, ok := m.schema.Lookup(key); !ok {
		return fmt.Errorf("unrecognized setting key %q", key)
	}

	m.mu.Lock()
	m.values[key] = value
	snapshot := m.snapshotLocked()
	characterID := m.characterID
	handlers := append([]registeredHandler(nil), m.handlers[key]...)
	m.mu.Unlock()

	if ok := m.kv.SetJSON(ctx, storageKey(characterID), storage.StoreSettings, snapshot, false); !ok {
		m.log.Warn("settings: write failed, proceeding without persistence", zap.String("key", key))
	}

	for _, h := range handlers {
		h.fn(value)
	}
	return nil
}

func (m *Manager) snapshotLocked() map[string]any {
	out := make(map[string]any, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// OnSettingChange registers handler to be invoked after successful writes
// to key, returning a Handle for later removal via OffSettingChange.
func (m *Manager) OnSettingChange(key string, handler ChangeHandler) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextHandle++
	h := Handle(m.nextHandle)
	m.handlers[key] = append(m.handlers[key], registeredHandler{handle: h, fn: handler})
	return h
}

// OffSettingChange removes the handler previously returned by
// OnSettingChange as handle.
func (m *Manager) OffSettingChange(key string, handle Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hs := m.handlers[key]
	for i, rh := range hs {
		if rh.handle == handle {
			m.handlers[key] = append(hs[:i], hs[i+1:]...)
			return
		}
	}
}

// DependenciesSatisfied evaluates a setting's dependency clause against the
// current value map (spec §4.4 "disabled in the UI" — consumers should
// treat a failing clause as "do not act on this setting").
func (m *Manager) DependenciesSatisfied(key string) bool {
	def, ok := m.schema.Lookup(key)
	if !ok || def.Dependencies == nil {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return evalClause(*def.Dependencies, m.values)
}

func evalClause(c DependencyClause, values map[string]any) bool {
	if len(c.Items) == 0 {
		return true
	}
	switch c.Mode {
	case DependencyAny:
		for _, d := range c.Items {
			if valuesEqual(values[d.Key], d.Equals) {
				return true
			}
		}
		return false
	default: // DependencyAll
		for _, d := range c.Items {
			if !valuesEqual(values[d.Key], d.Equals) {
				return false
			}
		}
		return true
	}
}

func valuesEqual(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// RenderTemplate substitutes variable fragments of a template-type setting
// from vars, concatenating all fragments (spec §4.4 "Rendered by combining
// fragments").
func RenderTemplate(fragments []TemplateFragment, vars map[string]string) string {
	out := ""
	for _, f := range fragments {
		switch f.Type {
		case "text":
			out += f.Value
		case "variable":
			out += vars[f.Key]
		}
	}
	return out
}

// Export returns the current character's settings document as JSON, for
// the external export/import round trip (spec §8 "Settings export followed
// by settings import produces a settings snapshot equal to the exported one").
func (m *Manager) Export() ([]byte, error) {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	// Re-encode through plain JSON values so typed defaults (template
	// fragments) serialize exactly as the same values do after Import.
	var normalized map[string]any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// Import replaces the current character's settings with the contents of an
// export blob and persists it immediately.
func (m *Manager) Import(ctx context.Context, blob []byte) error {
	var incoming map[string]any
	if err := json.Unmarshal(blob, &incoming); err != nil {
		return fmt.Errorf("parse settings import: %w", err)
	}

	m.mu.Lock()
	merged := m.schema.Defaults()
	for k, v := range incoming {
		if _, ok := m.schema.Lookup(k); ok {
			merged[k] = v
		}
	}
	m.values = merged
	characterID := m.characterID
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.kv.SetJSON(ctx, storageKey(characterID), storage.StoreSettings, snapshot, true)
	return nil
}

// Reset restores every setting to its schema default for the current
// character.
func (m *Manager) Reset(ctx context.Context) {
	m.mu.Lock()
	m.values = m.schema.Defaults()
	characterID := m.characterID
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	m.kv.SetJSON(ctx, storageKey(characterID), storage.StoreSettings, snapshot, true)
}

func (m *Manager) addKnownCharacter(ctx context.Context, characterID string) {
	var known []string
	m.kv.GetJSON(ctx, knownCharacterIDsKey, storage.StoreSettings, &known)
	for _, id := range known {
		if id == characterID {
			return
		}
	}
	known = append(known, characterID)
	m.kv.SetJSON(ctx, knownCharacterIDsKey, storage.StoreSettings, known, false)
}

// SyncToAllCharacters copies the current character's settings document to
// every known character id (spec §4.4 "one operation copies the current
// character's settings to every known character id").
func (m *Manager) SyncToAllCharacters(ctx context.Context) error {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	currentID := m.characterID
	m.mu.Unlock()

	var known []string
	m.kv.GetJSON(ctx, knownCharacterIDsKey, storage.StoreSettings, &known)

	for _, id := range known {
		if id == currentID {
			continue
		}
		if ok := m.kv.SetJSON(ctx, storageKey(id), storage.StoreSettings, snapshot, false); !ok {
			return fmt.Errorf("sync settings to character %s failed", id)
		}
	}
	return nil
}
