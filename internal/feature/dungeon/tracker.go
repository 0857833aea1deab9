// Package dungeon implements the Dungeon Run Tracker, spec'd in §4.8 as
// the canonical Feature Registry consumer: a small state machine fed by
// new_battle, action_completed, actions_updated and chat_message_received,
// persisting completed runs with a duplicate guard.
package dungeon

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/character"
	"github.com/toolasha/agent/internal/interceptor"
	"github.com/toolasha/agent/internal/storage"
)

const (
	inProgressKey = "dungeonTracker_inProgressRun"
	allRunsKey    = "allRuns"

	duplicateTimestampWindow = 10 * time.Second
	duplicateDurationWindow  = 2 * time.Second
)

// State is the tracker's run state (spec §4.8 "State machine").
type State int

const (
	StateIdle State = iota
	StateTracking
)

// DungeonRun is one tracked or reconstructed dungeon clear.
type DungeonRun struct {
	RunID               string        `json:"runId"`
	BattleID            string        `json:"battleId"`
	DungeonHrid         string        `json:"dungeonHrid"`
	DungeonName         string        `json:"dungeonName"`
	StartTime           time.Time     `json:"startTime"`
	MaxWaves            int           `json:"maxWaves"`
	WavesCompleted      int           `json:"wavesCompleted"`
	Validated           bool          `json:"validated"`
	Duration            time.Duration `json:"duration"`
	TeamKey             string        `json:"teamKey"`
	HibernationDetected bool          `json:"hibernationDetected"`
	WaveTimes           []time.Duration `json:"waveTimes,omitempty"`
}

// hubSubscriber narrows *interceptor.Hub to what the tracker needs, for
// testability (action_completed has no Data Manager domain event, so the
// tracker subscribes to it directly on the hub).
type hubSubscriber interface {
	Subscribe(msgType string, fn interceptor.HandlerFunc)
}

// Tracker owns the in-progress run and emits persisted DungeonRuns.
type Tracker struct {
	kv  storage.KV
	log *zap.Logger
	now func() time.Time

	mu                 sync.Mutex
	state              State
	current            *DungeonRun
	lastWaveStart      time.Time
	keyCountTimestamps []time.Time
}

// New constructs a Tracker and wires its subscriptions. now defaults to
// time.Now; tests may override it for deterministic timestamps.
func New(hub hubSubscriber, charMgr *character.Manager, kv storage.KV, log *zap.Logger) *Tracker {
	t := &Tracker{kv: kv, log: log, now: time.Now, state: StateIdle}

	charMgr.On(character.EventNewBattle, func(payload any) {
		frame, ok := payload.(map[string]any)
		if ok {
			t.onNewBattle(frame)
		}
	})
	charMgr.On(character.EventChatMessageReceived, func(payload any) {
		frame, ok := payload.(map[string]any)
		if ok {
			t.onChatMessage(frame)
		}
	})
	hub.Subscribe("action_completed", func(_ string, frame map[string]any) {
		t.onActionCompleted(frame)
	})
	charMgr.On(character.EventActionsUpdated, func(payload any) {
		frame, ok := payload.(map[string]any)
		if ok {
			t.onActionsUpdated(frame)
		}
	})

	return t
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Runs returns every persisted run from the unifiedRuns store, newest last
// — the same slice appendUnifiedRunLocked maintains.
func (t *Tracker) Runs(ctx context.Context) []DungeonRun {
	var runs []DungeonRun
	t.kv.GetJSON(ctx, allRunsKey, storage.StoreUnifiedRuns, &runs)
	return runs
}

// onNewBattle starts a run on wave 0 of a dungeon action, or records a
// wave while already tracking (spec §4.8 "Run start" / "Wave timing").
func (t *Tracker) onNewBattle(frame map[string]any) {
	wave := int(asFloat(frame["wave"]))
	isDungeon, _ := frame["isDungeon"].(bool)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateIdle {
		if wave != 0 || !isDungeon {
			return
		}
		t.current = &DungeonRun{
			RunID:       uuid.NewString(),
			BattleID:    asString(frame["battleId"]),
			DungeonHrid: asString(frame["dungeonHrid"]),
			DungeonName: asString(frame["dungeonName"]),
			StartTime:   t.now(),
			MaxWaves:    int(asFloat(frame["maxWaves"])),
		}
		t.state = StateTracking
		t.lastWaveStart = t.current.StartTime
		t.keyCountTimestamps = nil
		t.persistInProgressLocked()
		return
	}

	// Already tracking: a wave>0 new_battle just marks wave progress.
	if t.current != nil {
		now := t.now()
		t.current.WaveTimes = append(t.current.WaveTimes, now.Sub(t.lastWaveStart))
		t.lastWaveStart = now
		t.persistInProgressLocked()
	}
}

// onChatMessage tracks partyKeyCount (authoritative duration) and
// partyFailed (early exit) per spec §4.8.
func (t *Tracker) onChatMessage(frame map[string]any) {
	msg := asString(frame["m"])

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateTracking {
		return
	}

	switch msg {
	case "systemChatMessage.partyKeyCount":
		t.keyCountTimestamps = append(t.keyCountTimestamps, t.now())
		if team, ok := frame["team"].([]any); ok && t.current.TeamKey == "" {
			t.current.TeamKey = teamKey(team)
		}
		if len(t.keyCountTimestamps) >= 2 {
			t.completeLocked()
		}
	case "systemChatMessage.partyFailed":
		t.discardLocked()
	}
}

// onActionCompleted closes a wave and, on isDone, either finalizes or
// discards the run depending on wavesCompleted vs maxWaves.
func (t *Tracker) onActionCompleted(frame map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateTracking || t.current == nil {
		return
	}

	isDone, _ := frame["isDone"].(bool)
	wavesCompleted := int(asFloat(frame["wavesCompleted"]))
	t.current.WavesCompleted = wavesCompleted

	if !isDone {
		now := t.now()
		t.current.WaveTimes = append(t.current.WaveTimes, now.Sub(t.lastWaveStart))
		t.lastWaveStart = now
		t.persistInProgressLocked()
		return
	}

	if wavesCompleted >= t.current.MaxWaves {
		t.completeLocked()
	} else {
		t.discardLocked()
	}
}

// onActionsUpdated handles the full-queue replacement carrying a finished
// dungeon action's isDone/wavesCompleted fields, an alternate path to the
// same completion/discard decision as onActionCompleted (spec §4.8 lists
// both actions_updated and action_completed as tracker inputs).
func (t *Tracker) onActionsUpdated(frame map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateTracking || t.current == nil {
		return
	}

	rows, _ := frame["actions"].([]any)
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if asString(row["actionHrid"]) != t.current.DungeonHrid {
			continue
		}
		isDone, _ := row["isDone"].(bool)
		if !isDone {
			continue
		}
		t.current.WavesCompleted = int(asFloat(row["wavesCompleted"]))
		if t.current.WavesCompleted >= t.current.MaxWaves {
			t.completeLocked()
		} else {
			t.discardLocked()
		}
		return
	}
}

// completeLocked finalizes the current run using authoritative party-chat
// duration when two partyKeyCount observations exist, else wall clock
// (spec §4.8 "Authoritative duration"), then persists with a duplicate
// guard and resets to IDLE.
func (t *Tracker) completeLocked() {
	run := t.current
	if run == nil {
		t.state = StateIdle
		return
	}

	if len(t.keyCountTimestamps) >= 2 {
		run.Validated = true
		run.Duration = t.keyCountTimestamps[len(t.keyCountTimestamps)-1].Sub(t.keyCountTimestamps[0])
	} else {
		run.Validated = false
		run.Duration = t.now().Sub(run.StartTime)
	}

	ctx := context.Background()
	t.appendUnifiedRunLocked(ctx, run)

	t.kv.Delete(ctx, inProgressKey, storage.StoreSettings)
	t.current = nil
	t.state = StateIdle
	t.keyCountTimestamps = nil
}

// discardLocked resets the tracker without saving (spec §4.8 "Early exit").
func (t *Tracker) discardLocked() {
	ctx := context.Background()
	t.kv.Delete(ctx, inProgressKey, storage.StoreSettings)
	t.current = nil
	t.state = StateIdle
	t.keyCountTimestamps = nil
}

// appendUnifiedRunLocked writes run to the unifiedRuns store, skipping it
// if an existing run matches the duplicate-guard window (spec §8 "duplicate
// -detection windows: 10s timestamp, 2s duration").
func (t *Tracker) appendUnifiedRunLocked(ctx context.Context, run *DungeonRun) bool {
	var runs []DungeonRun
	t.kv.GetJSON(ctx, allRunsKey, storage.StoreUnifiedRuns, &runs)

	for _, existing := range runs {
		if existing.TeamKey != run.TeamKey {
			continue
		}
		tsDiff := run.StartTime.Sub(existing.StartTime)
		if tsDiff < 0 {
			tsDiff = -tsDiff
		}
		durDiff := run.Duration - existing.Duration
		if durDiff < 0 {
			durDiff = -durDiff
		}
		if tsDiff <= duplicateTimestampWindow && durDiff <= duplicateDurationWindow {
			t.log.Debug("dungeon: duplicate run suppressed", zap.String("battleId", run.BattleID))
			return false
		}
	}

	runs = append(runs, *run)
	t.kv.SetJSON(ctx, allRunsKey, storage.StoreUnifiedRuns, runs, true)
	return true
}

func (t *Tracker) persistInProgressLocked() {
	t.kv.SetJSON(context.Background(), inProgressKey, storage.StoreSettings, t.current, false)
}

// RestoreOnReload checks a persisted in-progress run against the battleId
// of a freshly observed new_battle frame and resumes tracking it if they
// match (spec §4.8 "Persistence" — "if a stored run's battleId matches
// the current new_battle.battleId, it is restored").
func (t *Tracker) RestoreOnReload(ctx context.Context, battleID string) bool {
	var stored *DungeonRun
	t.kv.GetJSON(ctx, inProgressKey, storage.StoreSettings, &stored)
	if stored == nil || stored.BattleID != battleID {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = stored
	t.state = StateTracking
	t.lastWaveStart = t.now()
	return true
}

// teamKey builds the sorted,comma-joined party-name key spec §3 defines
// duplicate-run detection against: names must be sorted so that the same
// party reported in a different wire order still produces the same key.
func teamKey(team []any) string {
	names := make([]string, 0, len(team))
	for _, v := range team {
		names = append(names, asString(v))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func asString(v any) string {
	s, _ := v.(string)
	return s
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
