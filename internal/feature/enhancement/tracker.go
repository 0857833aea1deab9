// Package enhancement implements the Enhancement Tracker feature from spec
// §3's EnhancementSession data model: attempt inference from the character
// projection, milestone tracking, session resume/extend, and formula-driven
// predictions.
package enhancement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/character"
	"github.com/toolasha/agent/internal/featurereg"
	"github.com/toolasha/agent/internal/formula"
	"github.com/toolasha/agent/internal/storage"
)

const (
	sessionsKey = "enhancementTracker_sessions"
	currentKey  = "enhancementTracker_currentSession"
)

// SessionState is an EnhancementSession's lifecycle state (spec §3 "state:
// 'tracking' | 'completed'").
type SessionState string

const (
	StateTracking  SessionState = "tracking"
	StateCompleted SessionState = "completed"
)

// AttemptStats is one level's aggregated attempt outcomes (spec §3
// "attemptsPerLevel: mapping level -> {success, fail, successRate}").
type AttemptStats struct {
	Success     int     `json:"success"`
	Fail        int     `json:"fail"`
	SuccessRate float64 `json:"successRate"`
}

// PendingAttempt is an optimistically-recorded attempt, resolved to
// success/fail by the next observed enhancement-level change (spec §3
// "lastAttempt: {attemptNumber, level, timestamp} — used to infer
// success/failure from subsequent level observations").
type PendingAttempt struct {
	AttemptNumber int       `json:"attemptNumber"`
	Level         int       `json:"level"`
	Timestamp     time.Time `json:"timestamp"`
}

// Predictions are formula-derived forecasts for reaching TargetLevel (spec
// §3 "predictions?: {expectedAttempts, expectedProtections, expectedTime,
// successMultiplier}").
type Predictions struct {
	ExpectedAttempts    float64 `json:"expectedAttempts"`
	ExpectedProtections float64 `json:"expectedProtections"`
	ExpectedTime        float64 `json:"expectedTime"`
	SuccessMultiplier   float64 `json:"successMultiplier"`
}

// Session is the Go shape of spec §3's EnhancementSession.
type Session struct {
	ID          string       `json:"id"`
	State       SessionState `json:"state"`
	ItemHrid    string       `json:"itemHrid"`
	ItemName    string       `json:"itemName"`
	ItemLevel   int          `json:"itemLevel"`
	LocationHrid string      `json:"itemLocationHrid"`
	ActionHrid  string       `json:"actionHrid"`

	StartLevel   int `json:"startLevel"`
	TargetLevel  int `json:"targetLevel"`
	CurrentLevel int `json:"currentLevel"`
	ProtectFrom  int `json:"protectFrom"`

	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	LastUpdateTime time.Time  `json:"lastUpdateTime"`

	LastAttempt *PendingAttempt `json:"lastAttempt,omitempty"`

	AttemptsPerLevel map[int]*AttemptStats `json:"attemptsPerLevel"`

	MaterialCosts      float64 `json:"materialCosts"`
	CoinCost           float64 `json:"coinCost"`
	CoinCount          int     `json:"coinCount"`
	ProtectionCost     float64 `json:"protectionCost"`
	ProtectionCount    int     `json:"protectionCount"`
	ProtectionItemHrid string  `json:"protectionItemHrid,omitempty"`
	TotalCost          float64 `json:"totalCost"`

	TotalSuccesses       int  `json:"totalSuccesses"`
	TotalFailures        int  `json:"totalFailures"`
	LongestSuccessStreak int  `json:"longestSuccessStreak"`
	LongestFailureStreak int  `json:"longestFailureStreak"`
	CurrentStreak        int  `json:"currentStreak"` // positive = success streak, negative = failure streak

	MilestonesReached []int `json:"milestonesReached"`
	TotalXP           float64 `json:"totalXP"`

	Predictions *Predictions `json:"predictions,omitempty"`
}

// Tracker owns every EnhancementSession and infers attempts from the
// character projection's inventory patches.
type Tracker struct {
	kv      storage.KV
	charMgr *character.Manager
	formula *formula.Engine
	log     *zap.Logger

	mu        sync.Mutex
	sessions  map[string]*Session
	currentID string
	handle    character.Handle
}

// New constructs a Tracker. Sessions are loaded from storage on Initialize.
func New(charMgr *character.Manager, kv storage.KV, f *formula.Engine, log *zap.Logger) *Tracker {
	return &Tracker{charMgr: charMgr, kv: kv, formula: f, log: log, sessions: make(map[string]*Session)}
}

func (t *Tracker) Key() string      { return "enhancement" }
func (t *Tracker) Name() string     { return "Enhancement Tracker" }
func (t *Tracker) Category() string { return "tracking" }

// Initialize loads persisted sessions and wires the items_updated inference
// listener (spec §4.7 "Acquire every resource ... through a registry
// object so cleanup is one call").
func (t *Tracker) Initialize(ctx context.Context, res *featurereg.Resources) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sessions map[string]*Session
	t.kv.GetJSON(ctx, sessionsKey, storage.StoreSettings, &sessions)
	if sessions == nil {
		sessions = make(map[string]*Session)
	}
	t.sessions = sessions

	var current string
	t.kv.GetJSON(ctx, currentKey, storage.StoreSettings, &current)
	t.currentID = current

	t.handle = t.charMgr.On(character.EventItemsUpdated, func(payload any) {
		frame, ok := payload.(map[string]any)
		if ok {
			t.onItemsUpdated(frame)
		}
	})
	res.OnCleanup(func() {
		t.charMgr.Off(character.EventItemsUpdated, t.handle)
	})
	return nil
}

// Disable does nothing itself: the items_updated listener is removed by the
// Resources cleanup registered in Initialize, and persisted sessions survive
// (spec §4.7 "disable()" tears down listeners, not persisted feature data).
func (t *Tracker) Disable() {}

// StartSession begins tracking an item, resuming a matching session (in
// any state) if one exists (spec §8 "Enhancement session resume: a new
// session with matching (itemHrid, currentLevel±1, targetLevel,
// protectFrom) uses the existing session").
func (t *Tracker) StartSession(itemHrid, itemName, locationHrid, actionHrid string, startLevel, targetLevel, protectFrom int) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.sessions {
		if s.ItemHrid != itemHrid || s.TargetLevel != targetLevel || s.ProtectFrom != protectFrom {
			continue
		}
		diff := s.CurrentLevel - startLevel
		if diff == -1 || diff == 0 || diff == 1 {
			s.State = StateTracking
			s.LocationHrid = locationHrid
			s.ActionHrid = actionHrid
			now := time.Now()
			s.EndTime = nil
			s.LastUpdateTime = now
			t.currentID = s.ID
			t.persistLocked()
			return s
		}
	}

	now := time.Now()
	s := &Session{
		ID:               uuid.NewString(),
		State:            StateTracking,
		ItemHrid:         itemHrid,
		ItemName:         itemName,
		LocationHrid:     locationHrid,
		ActionHrid:       actionHrid,
		StartLevel:       startLevel,
		TargetLevel:      targetLevel,
		CurrentLevel:     startLevel,
		ProtectFrom:      protectFrom,
		StartTime:        now,
		LastUpdateTime:   now,
		AttemptsPerLevel: make(map[int]*AttemptStats),
	}
	t.sessions[s.ID] = s
	t.currentID = s.ID
	t.persistLocked()
	return s
}

// RecordPendingAttempt optimistically records that an enhancement attempt
// was just consumed by the game (observed via an actions_updated tick on
// the session's actionHrid), before the outcome is known.
func (t *Tracker) RecordPendingAttempt(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sessions[sessionID]
	if s == nil || s.State != StateTracking {
		return
	}
	attemptNumber := s.TotalSuccesses + s.TotalFailures + 1
	s.LastAttempt = &PendingAttempt{AttemptNumber: attemptNumber, Level: s.CurrentLevel, Timestamp: time.Now()}
	t.persistLocked()
}

// onItemsUpdated resolves a pending attempt by comparing the tracked slot's
// new enhancementLevel against lastAttempt.Level: +1 is success, unchanged
// is failure (spec §3's documented inference mechanism).
func (t *Tracker) onItemsUpdated(frame map[string]any) {
	rows, _ := frame["itemsUpdated"].([]any)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		itemHrid, _ := row["itemHrid"].(string)
		locationHrid, _ := row["itemLocationHrid"].(string)
		level := int(asFloat(row["enhancementLevel"]))

		for _, s := range t.sessions {
			if s.State != StateTracking || s.ItemHrid != itemHrid || s.LocationHrid != locationHrid {
				continue
			}
			if s.LastAttempt == nil {
				continue
			}
			t.resolveAttemptLocked(s, level)
		}
	}
}

func (t *Tracker) resolveAttemptLocked(s *Session, observedLevel int) {
	attempt := s.LastAttempt
	success := observedLevel == attempt.Level+1

	stats := s.AttemptsPerLevel[attempt.Level]
	if stats == nil {
		stats = &AttemptStats{}
		s.AttemptsPerLevel[attempt.Level] = stats
	}

	wisdom := t.wisdomLevel()
	xp := t.formula.EnhancementXP(wisdom, attempt.Level, s.ItemLevel, success)
	s.TotalXP += xp

	if success {
		stats.Success++
		s.TotalSuccesses++
		s.CurrentLevel = observedLevel
		if s.CurrentStreak >= 0 {
			s.CurrentStreak++
		} else {
			s.CurrentStreak = 1
		}
		if s.CurrentStreak > s.LongestSuccessStreak {
			s.LongestSuccessStreak = s.CurrentStreak
		}
		t.checkMilestonesLocked(s)
	} else {
		stats.Fail++
		s.TotalFailures++
		if s.CurrentStreak <= 0 {
			s.CurrentStreak--
		} else {
			s.CurrentStreak = -1
		}
		if -s.CurrentStreak > s.LongestFailureStreak {
			s.LongestFailureStreak = -s.CurrentStreak
		}
	}
	stats.SuccessRate = float64(stats.Success) / float64(stats.Success+stats.Fail)

	s.LastAttempt = nil
	s.LastUpdateTime = time.Now()

	if s.CurrentLevel >= s.TargetLevel {
		t.completeLocked(s)
	}
	t.persistLocked()
}

// checkMilestonesLocked records newly-reached milestone levels (spec §3
// "milestonesReached — set of levels in {5,10,15,20}").
func (t *Tracker) checkMilestonesLocked(s *Session) {
	for _, lvl := range t.formula.MilestoneLevels() {
		if s.CurrentLevel != lvl {
			continue
		}
		for _, reached := range s.MilestonesReached {
			if reached == lvl {
				return
			}
		}
		s.MilestonesReached = append(s.MilestonesReached, lvl)
	}
}

// completeLocked transitions a session to completed once its target level
// is reached (spec §3 "Lifecycle").
func (t *Tracker) completeLocked(s *Session) {
	s.State = StateCompleted
	now := time.Now()
	s.EndTime = &now
	if t.currentID == s.ID {
		t.currentID = ""
	}
}

// ExtendSession reopens a completed session at a new target level,
// preserving cost and attempt history (spec §3 "A completed session may be
// extended to a new target level — state returns to tracking, endTime is
// cleared, but costs and attempt history are preserved").
func (t *Tracker) ExtendSession(sessionID string, newTarget int) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.sessions[sessionID]
	if s == nil || s.State != StateCompleted {
		return nil, false
	}
	s.State = StateTracking
	s.TargetLevel = newTarget
	s.EndTime = nil
	s.LastUpdateTime = time.Now()
	t.currentID = s.ID
	t.persistLocked()
	return s, true
}

// Predict runs the Markov-chain cost calculator for a session's remaining
// climb from its current level to its target, using observed per-attempt
// material and protection costs as the run rate going forward (spec §3
// "predictions?: {expectedAttempts, expectedProtections, expectedTime,
// successMultiplier}"). The result is stored on the session and returned.
func (t *Tracker) Predict(sessionID string) (*Predictions, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.sessions[sessionID]
	if s == nil {
		return nil, false
	}

	materialRate := perAttemptMaterialCost(s)
	protectionRate := perAttemptProtectionCost(s)

	estimate := EstimateCost(t.formula, s.CurrentLevel, s.TargetLevel, s.ProtectFrom, materialRate, protectionRate)

	successMultiplier := 1.0
	if observed := t.observedSuccessMultiplier(s); observed > 0 {
		successMultiplier = observed
	}

	secondsPerAttempt := t.secondsPerAttempt(s.ActionHrid)

	s.Predictions = &Predictions{
		ExpectedAttempts:    estimate.ExpectedAttempts,
		ExpectedProtections: estimate.ExpectedProtections,
		ExpectedTime:        estimate.ExpectedAttempts * secondsPerAttempt,
		SuccessMultiplier:   successMultiplier,
	}
	t.persistLocked()
	return s.Predictions, true
}

// perAttemptMaterialCost averages a session's observed material spend per
// attempt so far, falling back to 0 (unknown) before any attempts land.
func perAttemptMaterialCost(s *Session) float64 {
	total := s.TotalSuccesses + s.TotalFailures
	if total == 0 {
		return 0
	}
	return s.MaterialCosts / float64(total)
}

// perAttemptProtectionCost mirrors perAttemptMaterialCost for protection
// item spend, counted only across attempts made at or above protectFrom.
func perAttemptProtectionCost(s *Session) float64 {
	if s.ProtectionCount == 0 {
		return 0
	}
	return s.ProtectionCost / float64(s.ProtectionCount)
}

// observedSuccessMultiplier compares the session's actually-observed
// success rate against the formula engine's built-in rate at the same
// level, giving callers a sense of whether this run is running hot or cold
// relative to the reference curve.
func (t *Tracker) observedSuccessMultiplier(s *Session) float64 {
	stats := s.AttemptsPerLevel[s.CurrentLevel]
	if stats == nil || stats.Success+stats.Fail == 0 {
		return 0
	}
	reference := t.formula.EnhancementSuccessRate(s.CurrentLevel)
	if reference <= 0 {
		return 0
	}
	return stats.SuccessRate / reference
}

// secondsPerAttempt reads the action's base time cost (nanoseconds, per the
// character dictionary's wire shape) from the static action dictionary.
func (t *Tracker) secondsPerAttempt(actionHrid string) float64 {
	detail, ok := t.charMgr.ActionDetails(actionHrid)
	if !ok {
		return 0
	}
	base, _ := detail.Raw["baseTimeCost"].(float64)
	return base / 1e9
}

// Sessions returns every persisted session, keyed by id.
func (t *Tracker) Sessions() map[string]*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]*Session, len(t.sessions))
	for k, v := range t.sessions {
		cp := *v
		out[k] = &cp
	}
	return out
}

// wisdomLevel feeds the XP formula's "wisdom" parameter, preserved
// verbatim from spec §9's reference-data note. Toolasha sources it from
// the character's Enhancing skill level rather than a classic RPG wisdom
// stat, since this game has no separate wisdom attribute.
func (t *Tracker) wisdomLevel() int {
	if skills := t.charMgr.Skills(); skills != nil {
		if sk, ok := skills["/skills/enhancing"]; ok {
			return sk.Level
		}
	}
	return 0
}

func (t *Tracker) persistLocked() {
	t.kv.SetJSON(context.Background(), sessionsKey, storage.StoreSettings, t.sessions, false)
	t.kv.SetJSON(context.Background(), currentKey, storage.StoreSettings, t.currentID, false)
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
