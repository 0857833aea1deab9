package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store names recognized by Toolasha, each a namespaced Postgres table.
// Spec §4.3 / §6 "Persisted state".
const (
	StoreSettings        = "settings"
	StoreCombatStats     = "combat_stats"
	StoreUnifiedRuns     = "unified_runs"
	StoreRerollSpending  = "reroll_spending"
	StoreCollapseStates  = "collapse_states"
	StoreCombatExport    = "combat_export"
)

var knownStores = map[string]bool{
	StoreSettings:       true,
	StoreCombatStats:    true,
	StoreUnifiedRuns:    true,
	StoreRerollSpending: true,
	StoreCollapseStates: true,
	StoreCombatExport:   true,
}

type pendingWrite struct {
	store string
	key   string
	value []byte // nil means delete
}

// Storage is the coalescing document KV surface. One write-coalescing
// ticker per process; all stores share it (spec §4.3: "50-200ms ... per
// store"). Failures never propagate — callers get a bool/default back and
// the rest of the system tolerates a non-persistent session.
type Storage struct {
	db            *DB
	log           *zap.Logger
	flushInterval time.Duration

	mu      sync.Mutex
	pending map[string]pendingWrite // dedup key = store+"\x00"+key, last-write-wins

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(db *DB, flushInterval time.Duration, log *zap.Logger) *Storage {
	s := &Storage{
		db:            db,
		log:           log,
		flushInterval: flushInterval,
		pending:       make(map[string]pendingWrite),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go s.coalesceLoop()
	return s
}

func dedupKey(store, key string) string { return store + "\x00" + key }

func (s *Storage) coalesceLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.FlushAll()
		case <-s.stopCh:
			s.FlushAll()
			return
		}
	}
}

// Close stops the coalescing loop after a final flush.
func (s *Storage) Close() {
	close(s.stopCh)
	<-s.doneCh
}

// Get reads a raw value, returning def if missing or on failure.
func (s *Storage) Get(ctx context.Context, key, store string, def []byte) []byte {
	if !knownStores[store] {
		return def
	}
	if v, ok := s.pendingValue(store, key); ok {
		if v == nil {
			return def
		}
		return v
	}
	var raw []byte
	err := s.db.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, store), key).Scan(&raw)
	if err != nil {
		return def
	}
	return raw
}

func (s *Storage) pendingValue(store, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw, ok := s.pending[dedupKey(store, key)]
	if !ok {
		return nil, false
	}
	return pw.value, true
}

// GetJSON unmarshals a stored value into a default, or returns def unchanged.
func (s *Storage) GetJSON(ctx context.Context, key, store string, def any) any {
	raw := s.Get(ctx, key, store, nil)
	if raw == nil {
		return def
	}
	if err := json.Unmarshal(raw, def); err != nil {
		s.log.Warn("storage: failed to unmarshal JSON", zap.String("key", key), zap.String("store", store), zap.Error(err))
		return def
	}
	return def
}

// Set stores a raw value. immediate=true flushes synchronously before
// returning; otherwise the write is coalesced into the next flush window.
func (s *Storage) Set(ctx context.Context, key, store string, value []byte, immediate bool) bool {
	if !knownStores[store] {
		return false
	}
	s.mu.Lock()
	s.pending[dedupKey(store, key)] = pendingWrite{store: store, key: key, value: value}
	s.mu.Unlock()
	if immediate {
		return s.flushOne(ctx, store, key)
	}
	return true
}

// SetJSON marshals value and stores it.
func (s *Storage) SetJSON(ctx context.Context, key, store string, value any, immediate bool) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Warn("storage: failed to marshal JSON", zap.String("key", key), zap.Error(err))
		return false
	}
	return s.Set(ctx, key, store, raw, immediate)
}

// Delete removes a key (coalesced like Set with a nil value).
func (s *Storage) Delete(ctx context.Context, key, store string) bool {
	return s.Set(ctx, key, store, nil, false)
}

func (s *Storage) flushOne(ctx context.Context, store, key string) bool {
	s.mu.Lock()
	pw, ok := s.pending[dedupKey(store, key)]
	if ok {
		delete(s.pending, dedupKey(store, key))
	}
	s.mu.Unlock()
	if !ok {
		return true
	}
	return s.writeThrough(ctx, pw) == nil
}

// FlushAll synchronously writes every pending key in one pass, grouped by
// store into a single transaction each. Wired to the process's shutdown
// signal handler so no pending write is lost (spec §4.3).
func (s *Storage) FlushAll() {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[string]pendingWrite)
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	byStore := make(map[string][]pendingWrite)
	for _, pw := range batch {
		byStore[pw.store] = append(byStore[pw.store], pw)
	}

	for store, writes := range byStore {
		if err := s.flushStore(ctx, store, writes); err != nil {
			s.log.Warn("storage: flush failed", zap.String("store", store), zap.Error(err))
		}
	}
}

func (s *Storage) flushStore(ctx context.Context, store string, writes []pendingWrite) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, pw := range writes {
		if pw.value == nil {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, store), pw.key); err != nil {
				return fmt.Errorf("delete %s: %w", pw.key, err)
			}
			continue
		}
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, store),
			pw.key, pw.value,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", pw.key, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Storage) writeThrough(ctx context.Context, pw pendingWrite) error {
	return s.flushStore(ctx, pw.store, []pendingWrite{pw})
}
