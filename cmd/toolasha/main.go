package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/toolasha/agent/internal/api"
	"github.com/toolasha/agent/internal/character"
	"github.com/toolasha/agent/internal/config"
	"github.com/toolasha/agent/internal/feature/dungeon"
	"github.com/toolasha/agent/internal/feature/enhancement"
	"github.com/toolasha/agent/internal/feature/profit"
	"github.com/toolasha/agent/internal/feature/worker"
	"github.com/toolasha/agent/internal/featurereg"
	"github.com/toolasha/agent/internal/formula"
	"github.com/toolasha/agent/internal/interceptor"
	"github.com/toolasha/agent/internal/market"
	"github.com/toolasha/agent/internal/settings"
	"github.com/toolasha/agent/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main process logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/toolasha.toml"
	if p := os.Getenv("TOOLASHA_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Printf("\033[36;1m  │\033[0m  %-41s\033[36;1m│\033[0m\n", cfg.Tool.Name+" instrumentation agent")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()

	// 3. Connect to PostgreSQL and run migrations
	printSection("Database")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := storage.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("PostgreSQL connected")

	if err := storage.RunMigrations(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK("migrations applied")
	fmt.Println()

	// 4. Durable KV, settings, formula engine
	printSection("Core services")

	kv := storage.New(db, cfg.Storage.FlushInterval, log)
	defer kv.Close()

	schema := settings.DefaultSchema()
	settingsMgr := settings.New(kv, schema, log)
	printOK("settings schema loaded")

	scriptsDir := os.Getenv("TOOLASHA_FORMULA_SCRIPTS")
	if scriptsDir == "" {
		scriptsDir = "formulas"
	}
	formulaEngine, err := formula.NewEngine(scriptsDir, log)
	if err != nil {
		return fmt.Errorf("formula engine: %w", err)
	}
	defer formulaEngine.Close()
	printOK("formula engine ready")

	// 5. Interceptor hub — the sole WebSocket connection to the game
	printSection("Interceptor")
	hub := interceptor.Install(context.Background(), cfg.Game, kv, log)
	defer hub.Close()
	printOK(fmt.Sprintf("dialing %s", cfg.Game.WebSocketURL))
	fmt.Println()

	// 6. Character manager — sole CharacterState owner
	charMgr := character.New(hub, log)

	// 7. Market cache, seeded with the formula engine's artisan reduction
	// and the full fallback chain from spec §4.5: market -> crafting cost
	// (recipes read off charMgr's static action dictionary) -> vendor
	// (sellPrice off the item dictionary). Pricing mode is settings-backed
	// rather than always resolving to the ask side.
	modes := settings.NewPricingModeResolver(settingsMgr)
	recipes := profit.NewItemDictionaryRecipes(charMgr)
	vendor := profit.NewItemDictionaryVendor(charMgr)
	marketCache := market.New(cfg.Market, kv, modes, recipes, vendor, log)
	marketCache.SetArtisanReduction(formulaEngine.CraftingArtisanReduction())
	fetchCtx, fetchCancel := context.WithTimeout(context.Background(), cfg.Market.HTTPTimeout)
	marketCache.Fetch(fetchCtx, false)
	fetchCancel()
	printOK("market snapshot primed")
	fmt.Println()

	// Settings are per-character: load the active character's document
	// as soon as the hub tells us who that is.
	charMgr.On(character.EventCharacterInitialized, func(payload any) {
		p, ok := payload.(character.InitializedPayload)
		if !ok || p.State == nil {
			return
		}
		settingsMgr.Load(context.Background(), p.State.CharacterID)
	})

	// 8. Feature registry and the features it drives through init/health/
	// retry (spec §4.7). The dungeon tracker subscribes to the hub
	// directly at construction time rather than through the registry — it
	// has no DOM element to health-check and nothing to tear down on a
	// character switch beyond its own event handlers, which are already
	// scoped to the character manager's lifetime.
	reg := featurereg.New(charMgr, settingsMgr, log)

	dungeonTracker := dungeon.New(hub, charMgr, kv, log)

	enhancementTracker := enhancement.New(charMgr, kv, formulaEngine, log)

	containers := profit.NewItemDictionaryContainers(charMgr)
	calc := profit.NewCalculator(marketCache, containers, formulaEngine, log)
	profitTracker := profit.New(charMgr, marketCache, calc, log)

	reg.RegisterFeatures([]featurereg.Feature{enhancementTracker, profitTracker})
	printSection("Features")
	printOK("dungeon tracker installed")
	printOK("enhancement tracker registered")
	printOK("task profit display registered")
	fmt.Println()

	// 9. The two opt-in background-worker pools (spec §5), each wrapping
	// one of the calculators just built.
	costRunner := worker.NewEnhancementCostRunner(formulaEngine, log)
	containerRunner := worker.NewContainerEVRunner(calc, log)

	// 10. HTTP API — the userscript's panels talk to this instead of the
	// page DOM.
	srv := api.NewServer(cfg.API.BindAddress, charMgr, settingsMgr, dungeonTracker, enhancementTracker, marketCache, costRunner, containerRunner, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err.Error() != "http: Server closed" {
			log.Error("api: server exited", zap.Error(err))
		}
	}()

	printSection("Ready")
	printReady(fmt.Sprintf("HTTP API listening on %s", cfg.API.BindAddress))
	fmt.Println()

	// 11. Signal-handled shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdownCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := api.Shutdown(shutdownCtx, srv, log); err != nil {
		log.Warn("api: graceful shutdown failed", zap.Error(err))
	}

	kv.FlushAll()
	log.Info("stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
