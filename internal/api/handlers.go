package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/character"
	"github.com/toolasha/agent/internal/export"
	"github.com/toolasha/agent/internal/feature/dungeon"
	"github.com/toolasha/agent/internal/feature/enhancement"
	"github.com/toolasha/agent/internal/feature/worker"
	"github.com/toolasha/agent/internal/market"
	"github.com/toolasha/agent/internal/settings"
)

// Handler wires the HTTP surface to the running feature set. Every method
// is a thin translation from an *http.Request to the matching service
// call and back to JSON — no business logic lives here, matching the
// teacher's handler/service split.
type Handler struct {
	charMgr            *character.Manager
	settingsMgr        *settings.Manager
	dungeonTracker     *dungeon.Tracker
	enhancementTracker *enhancement.Tracker
	marketCache        *market.Cache
	costRunner         *worker.EnhancementCostRunner
	containerRunner    *worker.ContainerEVRunner
	log                *zap.Logger
}

// NewHandler constructs a Handler from the running feature set. costRunner
// and containerRunner back the two batch/what-if endpoints with the bounded
// worker pools from spec §5, kept off the interactive tracker methods
// (enhancement.Tracker.Predict, profit.Tracker.Recompute) which already run
// synchronously on their own call paths.
func NewHandler(charMgr *character.Manager, settingsMgr *settings.Manager, dungeonTracker *dungeon.Tracker, enhancementTracker *enhancement.Tracker, marketCache *market.Cache, costRunner *worker.EnhancementCostRunner, containerRunner *worker.ContainerEVRunner, log *zap.Logger) *Handler {
	return &Handler{
		charMgr:            charMgr,
		settingsMgr:        settingsMgr,
		dungeonTracker:     dungeonTracker,
		enhancementTracker: enhancementTracker,
		marketCache:        marketCache,
		costRunner:         costRunner,
		containerRunner:    containerRunner,
		log:                log,
	}
}

func (h *Handler) GetCharacter(w http.ResponseWriter, r *http.Request) {
	state := h.charMgr.CharacterState()
	if state == nil {
		writeNotFound(w, r, h.log, "character")
		return
	}
	writeJSON(w, r, h.log, state)
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	blob, err := h.settingsMgr.Export()
	if err != nil {
		writeInternalError(w, r, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(blob)
}

type putSettingRequest struct {
	Value any `json:"value"`
}

func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		writeBadRequest(w, r, h.log, "missing setting key")
		return
	}

	var body putSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		writeBadRequest(w, r, h.log, "invalid request body: "+err.Error())
		return
	}

	if err := h.settingsMgr.Set(r.Context(), key, body.Value); err != nil {
		writeBadRequest(w, r, h.log, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetDungeonRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.dungeonTracker.Runs(r.Context())
	writeJSON(w, r, h.log, runs)
}

type backfillRequest struct {
	ChatLog string `json:"chatLog"`
}

func (h *Handler) PostDungeonBackfill(w http.ResponseWriter, r *http.Request) {
	var body backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, r, h.log, "invalid request body: "+err.Error())
		return
	}
	result := h.dungeonTracker.BackfillFromChatHistory(r.Context(), body.ChatLog)
	writeJSON(w, r, h.log, result)
}

func (h *Handler) GetEnhancementSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, h.log, h.enhancementTracker.Sessions())
}

type extendSessionRequest struct {
	NewTarget int `json:"newTarget"`
}

func (h *Handler) PostEnhancementSessionExtend(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	var body extendSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, r, h.log, "invalid request body: "+err.Error())
		return
	}

	session, ok := h.enhancementTracker.ExtendSession(sessionID, body.NewTarget)
	if !ok {
		writeNotFound(w, r, h.log, "enhancement session")
		return
	}
	writeJSON(w, r, h.log, session)
}

func (h *Handler) GetExportCombatSim(w http.ResponseWriter, r *http.Request) {
	out, err := export.BuildCombatSimExport(h.charMgr)
	if err != nil {
		writeInternalError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, h.log, out)
}

func (h *Handler) GetExportMilkonomy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, h.log, export.BuildMilkonomyExport(h.charMgr))
}

// GetExportCharacterSheet requires the caller to supply baseUrl: the
// userscript knows which companion site it's linking to, and this
// service has no business hardcoding a third-party domain.
func (h *Handler) GetExportCharacterSheet(w http.ResponseWriter, r *http.Request) {
	baseURL := r.URL.Query().Get("baseUrl")
	if baseURL == "" {
		writeBadRequest(w, r, h.log, "missing baseUrl query parameter")
		return
	}
	url := export.BuildCharacterSheetURL(h.charMgr, baseURL)
	writeJSON(w, r, h.log, map[string]string{"url": url})
}

func (h *Handler) GetMarketPrice(w http.ResponseWriter, r *http.Request) {
	hrid := mux.Vars(r)["hrid"]
	if hrid != "" && hrid[0] != '/' {
		hrid = "/" + hrid
	}
	level := 0
	if raw := r.URL.Query().Get("enhancementLevel"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, r, h.log, "enhancementLevel must be an integer")
			return
		}
		level = parsed
	}

	price, ok := h.marketCache.GetPrice(hrid, level)
	if !ok {
		writeNotFound(w, r, h.log, "item price")
		return
	}
	writeJSON(w, r, h.log, price)
}

// GetEnhancementPredict is a standalone what-if cost calculator: given
// arbitrary level/protection/cost inputs (not necessarily a tracked
// session), it solves the Markov chain on the bounded worker pool and
// returns the estimate, letting the caller preview a strategy before
// starting or extending a session.
func (h *Handler) GetEnhancementPredict(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	currentLevel, err := strconv.Atoi(q.Get("currentLevel"))
	if err != nil {
		writeBadRequest(w, r, h.log, "currentLevel must be an integer")
		return
	}
	targetLevel, err := strconv.Atoi(q.Get("targetLevel"))
	if err != nil {
		writeBadRequest(w, r, h.log, "targetLevel must be an integer")
		return
	}
	protectFrom, err := strconv.Atoi(q.Get("protectFrom"))
	if err != nil {
		writeBadRequest(w, r, h.log, "protectFrom must be an integer")
		return
	}
	materialCost, err := strconv.ParseFloat(q.Get("materialCost"), 64)
	if err != nil {
		writeBadRequest(w, r, h.log, "materialCost must be a number")
		return
	}
	protectionCost, err := strconv.ParseFloat(q.Get("protectionCost"), 64)
	if err != nil {
		writeBadRequest(w, r, h.log, "protectionCost must be a number")
		return
	}

	estimate := h.costRunner.Compute(r.Context(), worker.EnhancementCostTask{
		CurrentLevel:             currentLevel,
		TargetLevel:              targetLevel,
		ProtectFrom:              protectFrom,
		MaterialCostPerAttempt:   materialCost,
		ProtectionCostPerAttempt: protectionCost,
	})
	writeJSON(w, r, h.log, estimate)
}

// GetProfitContainers resolves the expected value of one or more container
// hrids (e.g. reward chests) via the bounded container-EV worker pool,
// independent of any currently-queued action.
func (h *Handler) GetProfitContainers(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("hrids")
	if raw == "" {
		writeBadRequest(w, r, h.log, "missing hrids query parameter")
		return
	}
	hrids := strings.Split(raw, ",")

	opts := market.PriceOptions{Context: market.ContextProfit}
	values := h.containerRunner.Compute(r.Context(), hrids, opts)
	writeJSON(w, r, h.log, values)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, h.log, map[string]string{"status": "ok"})
}
