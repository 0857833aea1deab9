package api

import (
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RegisterRoutes wires the full endpoint list from this service's feature
// set onto router, grounded on the teacher's RegisterRoutes but with a
// single logging middleware in place of its rate-limit/API-key chain —
// this surface talks to the userscript running in the same browser
// session, not the public internet.
func RegisterRoutes(router *mux.Router, h *Handler, log *zap.Logger) {
	router.Use(requestIDMiddleware(log))

	router.HandleFunc("/character", h.GetCharacter).Methods("GET")

	router.HandleFunc("/settings", h.GetSettings).Methods("GET")
	router.HandleFunc("/settings/{key}", h.PutSetting).Methods("PUT")

	router.HandleFunc("/dungeon/runs", h.GetDungeonRuns).Methods("GET")
	router.HandleFunc("/dungeon/backfill", h.PostDungeonBackfill).Methods("POST")

	router.HandleFunc("/enhancement/sessions", h.GetEnhancementSessions).Methods("GET")
	router.HandleFunc("/enhancement/sessions/{id}/extend", h.PostEnhancementSessionExtend).Methods("POST")
	router.HandleFunc("/enhancement/predict", h.GetEnhancementPredict).Methods("GET")

	router.HandleFunc("/export/combat-sim", h.GetExportCombatSim).Methods("GET")
	router.HandleFunc("/export/milkonomy", h.GetExportMilkonomy).Methods("GET")
	router.HandleFunc("/export/character-sheet", h.GetExportCharacterSheet).Methods("GET")

	// {hrid:.*} rather than the default {hrid} segment matcher: item hrids
	// are themselves slash-separated paths (e.g. "/items/coin").
	router.HandleFunc("/market/price/{hrid:.*}", h.GetMarketPrice).Methods("GET")
	router.HandleFunc("/profit/containers", h.GetProfitContainers).Methods("GET")

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
}
