// Package api implements the local HTTP surface described in spec §5:
// the userscript's browser-side panels talk to this service instead of
// manipulating the page DOM directly, grounded on the teacher's handler/
// middleware/error-response layering (internal/api + internal/handlers
// in the Steam-stats analytics service this module borrows its HTTP
// texture from).
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/character"
	"github.com/toolasha/agent/internal/feature/dungeon"
	"github.com/toolasha/agent/internal/feature/enhancement"
	"github.com/toolasha/agent/internal/feature/worker"
	"github.com/toolasha/agent/internal/market"
	"github.com/toolasha/agent/internal/settings"
)

// NewServer builds the *http.Server ready for ListenAndServe, with every
// route from RegisterRoutes wired to handlers backed by the supplied
// feature instances.
func NewServer(addr string, charMgr *character.Manager, settingsMgr *settings.Manager, dungeonTracker *dungeon.Tracker, enhancementTracker *enhancement.Tracker, marketCache *market.Cache, costRunner *worker.EnhancementCostRunner, containerRunner *worker.ContainerEVRunner, log *zap.Logger) *http.Server {
	router := mux.NewRouter()
	handler := NewHandler(charMgr, settingsMgr, dungeonTracker, enhancementTracker, marketCache, costRunner, containerRunner, log)
	RegisterRoutes(router, handler, log)

	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Shutdown stops srv gracefully, giving in-flight requests up to the
// supplied context's deadline to complete.
func Shutdown(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: graceful shutdown: %w", err)
	}
	log.Info("api: server stopped")
	return nil
}
