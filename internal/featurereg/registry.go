// Package featurereg implements the feature registration and lifecycle
// state machine from spec §4.7: init -> health check -> retry, torn down
// and rebuilt wholesale on every character switch.
package featurereg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/character"
)

const (
	healthCheckDelay = 500 * time.Millisecond
	retryDelay       = 1 * time.Second
)

// Feature is the minimum contract every feature module implements (spec
// §4.7 "implements at least initialize() ... and disable()").
type Feature interface {
	Key() string
	Name() string
	Category() string
	Initialize(ctx context.Context, res *Resources) error
	Disable()
}

// HealthChecker is an optional feature capability: a predicate that
// identifies initialization that failed silently (spec §4.7 "typically
// 'was the feature's root DOM element injected'").
type HealthChecker interface {
	HealthCheck() bool
}

// Cleanuper is an optional feature capability: teardown without removing
// listeners (spec §4.7 "optionally cleanup()").
type Cleanuper interface {
	Cleanup()
}

// Refresher is an optional feature capability for color-token changes.
type Refresher interface {
	Refresh()
}

// SettingsChecker is the subset of *settings.Manager the registry depends
// on to decide whether a feature is enabled.
type SettingsChecker interface {
	Get(key string) (any, bool)
}

type featureState struct {
	feature     Feature
	resources   *Resources
	initialized bool
}

// Registry owns the feature list and drives the init/health-check/retry
// and character-switch teardown state machines.
type Registry struct {
	log      *zap.Logger
	settings SettingsChecker

	mu       sync.Mutex
	features []*featureState
}

// New constructs a Registry and subscribes it to the Data Manager's
// lifecycle events (spec §4.7 "Installed once at registry setup time").
func New(charMgr *character.Manager, settings SettingsChecker, log *zap.Logger) *Registry {
	r := &Registry{log: log, settings: settings}
	charMgr.On(character.EventCharacterInitialized, func(payload any) {
		p, ok := payload.(character.InitializedPayload)
		if !ok {
			return
		}
		r.onCharacterInitialized(p)
	})
	return r
}

// RegisterFeatures replaces the registry's feature list (spec §4.7
// "registerFeatures(features[]) replaces the registry's feature list").
func (r *Registry) RegisterFeatures(features []Feature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.features = make([]*featureState, 0, len(features))
	for _, f := range features {
		r.features = append(r.features, &featureState{feature: f})
	}
}

func (r *Registry) onCharacterInitialized(p character.InitializedPayload) {
	if p.IsCharacterSwitch {
		r.disableAll()
	}
	r.runInitFlow(context.Background())
}

func (r *Registry) enabled(key string) bool {
	v, ok := r.settings.Get(fmt.Sprintf("%s_enabled", key))
	if !ok {
		return true
	}
	b, ok := v.(bool)
	if !ok {
		return true
	}
	return b
}

// runInitFlow implements spec §4.7's three-step initialization: attempt
// every enabled feature, wait and health-check, retry failures once.
func (r *Registry) runInitFlow(ctx context.Context) {
	r.mu.Lock()
	states := append([]*featureState(nil), r.features...)
	r.mu.Unlock()

	failed := make(map[*featureState]bool)

	for _, st := range states {
		if !r.enabled(st.feature.Key()) {
			continue
		}
		if err := r.initializeOne(ctx, st); err != nil {
			failed[st] = true
		}
	}

	go func() {
		time.Sleep(healthCheckDelay)
		for _, st := range states {
			if !st.initialized {
				continue
			}
			hc, ok := st.feature.(HealthChecker)
			if ok && !hc.HealthCheck() {
				failed[st] = true
			}
		}
		if len(failed) == 0 {
			return
		}

		time.Sleep(retryDelay)
		for st := range failed {
			if err := r.initializeOne(ctx, st); err != nil {
				r.log.Error("featurereg: feature failed init retry, leaving disabled for session",
					zap.String("key", st.feature.Key()), zap.Error(err))
			}
		}
	}()
}

// initializeOne guards re-entry (spec §4.7 "initialize() is a no-op when
// already initialized") and tracks success/failure.
func (r *Registry) initializeOne(ctx context.Context, st *featureState) error {
	if st.initialized {
		return nil
	}
	if st.resources == nil {
		st.resources = newResources()
	}
	if err := st.feature.Initialize(ctx, st.resources); err != nil {
		r.log.Warn("featurereg: feature initialize failed", zap.String("key", st.feature.Key()), zap.Error(err))
		return err
	}
	st.initialized = true
	return nil
}

// disableAll tears down every active feature idempotently and clears its
// resource registry (spec §4.7 "calls disable() on every active feature
// (idempotently), clears per-feature caches").
func (r *Registry) disableAll() {
	r.mu.Lock()
	states := append([]*featureState(nil), r.features...)
	r.mu.Unlock()

	for _, st := range states {
		if !st.initialized {
			continue
		}
		st.feature.Disable()
		if st.resources != nil {
			st.resources.Close()
			st.resources = nil
		}
		st.initialized = false
	}
}

// Refresh invokes Refresh() on every initialized feature that implements
// Refresher, for color-token/theme changes.
func (r *Registry) Refresh() {
	r.mu.Lock()
	states := append([]*featureState(nil), r.features...)
	r.mu.Unlock()

	for _, st := range states {
		if !st.initialized {
			continue
		}
		if rf, ok := st.feature.(Refresher); ok {
			rf.Refresh()
		}
	}
}
