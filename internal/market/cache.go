// Package market implements the externally-fetched item price snapshot,
// TTL cache, and fallback pricing surface from spec §4.5.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/toolasha/agent/internal/config"
	"github.com/toolasha/agent/internal/storage"
)

const snapshotStorageKey = "market_snapshot"

// coinHrid is the reserved item id that is always worth exactly one coin
// on both sides of the book (spec §4.5 "/items/coin is always {ask: 1, bid: 1}").
const coinHrid = "/items/coin"

// PricePoint is one item's price on both sides of the book.
type PricePoint struct {
	Ask   float64 `json:"ask"`
	Bid   float64 `json:"bid"`
	AsOf  int64   `json:"asOf"`
	Level int     `json:"level"`
}

// itemEntry is one item's snapshot row: a base price plus optional
// enhancement-level tiers (spec §4.5 "optionally with enhancement-level tiers").
type itemEntry struct {
	Ask    float64            `json:"ask"`
	Bid    float64            `json:"bid"`
	AsOf   int64              `json:"asOf"`
	Levels map[int]PricePoint `json:"levels,omitempty"`
}

// Snapshot is the full fetched price mapping, itemHrid -> itemEntry.
type Snapshot struct {
	Items     map[string]itemEntry `json:"items"`
	FetchedAt time.Time            `json:"fetchedAt"`
}

// Side is which side of the order book to read.
type Side string

const (
	SideAsk Side = "ask"
	SideBid Side = "bid"
)

// Context selects which of the user's configured pricing modes to use when
// Mode is not given explicitly (spec §4.5 "context: 'profit' | 'networth' | 'default'").
type Context string

const (
	ContextProfit    Context = "profit"
	ContextNetworth  Context = "networth"
	ContextDefault   Context = "default"
)

// PriceOptions configures GetItemPrice.
type PriceOptions struct {
	Side             Side // used when Mode is empty and Context is ContextDefault
	Mode             Side // explicit override; takes precedence over Context
	Context          Context
	EnhancementLevel int
}

// PricingModeResolver resolves a Context to a Side using the user's
// settings (profit_pricingMode / profit_networthPricingMode), kept as an
// interface so market does not need to know about the settings schema's
// concrete keys.
type PricingModeResolver interface {
	ModeFor(ctx Context) Side
}

// RecipeBook supplies the crafting-cost fallback: the recursively-priced
// ingredients, artisan reduction, and upgrade cost for a craftable item.
// Feature modules that own the static game dictionary implement this; market
// has no game-data dependency of its own.
type RecipeBook interface {
	// Recipe returns the ingredient list and upgrade cost for hrid, or
	// ok=false if hrid is not craftable.
	Recipe(hrid string) (ingredients map[string]float64, upgradeCost float64, ok bool)
}

// VendorBook supplies the shop-coin-cost fallback.
type VendorBook interface {
	VendorPrice(hrid string) (coins float64, ok bool)
}

const artisanReduction = 0.9

// Cache is the TTL-bounded, singleflight-coalesced market price cache.
type Cache struct {
	cfg    config.MarketConfig
	kv     storage.KV
	http   *retryablehttp.Client
	log    *zap.Logger
	modes  PricingModeResolver
	recipe RecipeBook
	vendor VendorBook

	mu       sync.RWMutex
	snapshot *Snapshot
	artisan  float64

	group singleflight.Group
}

// New constructs a Cache. modes/recipe/vendor may be nil; GetItemPrice
// degrades gracefully (missing mode resolver falls back to opts.Side,
// missing recipe/vendor books simply shorten the fallback chain).
func New(cfg config.MarketConfig, kv storage.KV, modes PricingModeResolver, recipe RecipeBook, vendor VendorBook, log *zap.Logger) *Cache {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.HTTPClient.Timeout = cfg.HTTPTimeout
	client.Logger = nil // avoid retryablehttp's default stdlib logger; we log ourselves below

	return &Cache{
		cfg:     cfg,
		kv:      kv,
		http:    client,
		log:     log,
		modes:   modes,
		recipe:  recipe,
		vendor:  vendor,
		artisan: artisanReduction,
	}
}

// SetArtisanReduction overrides the crafting-cost artisan reduction
// multiplier (default 0.9, spec §4.5), letting callers wire it to
// internal/formula's overridable constant instead of the Go default.
func (c *Cache) SetArtisanReduction(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artisan = v
}

// Fetch returns the current snapshot, refreshing from the network if force
// is set or the in-memory snapshot is missing or older than the configured
// TTL (spec §4.5 "Lifecycle"). On network failure it returns the previously
// cached value, which may be stale, or nil if none exists yet.
func (c *Cache) Fetch(ctx context.Context, force bool) *Snapshot {
	c.mu.RLock()
	cur := c.snapshot
	c.mu.RUnlock()

	if !force && cur != nil && time.Since(cur.FetchedAt) <= c.cfg.TTL {
		return cur
	}

	v, err, _ := c.group.Do("fetch", func() (any, error) {
		return c.fetchLocked(ctx)
	})
	if err != nil {
		c.log.Warn("market: fetch failed, serving stale or empty cache", zap.Error(err))
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.snapshot
	}
	return v.(*Snapshot)
}

func (c *Cache) fetchLocked(ctx context.Context) (*Snapshot, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.cfg.SnapshotURL, nil)
	if err != nil {
		return nil, fmt.Errorf("market: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market: unexpected status %d", resp.StatusCode)
	}

	var items map[string]itemEntry
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("market: decode snapshot: %w", err)
	}

	snap := &Snapshot{Items: items, FetchedAt: time.Now()}

	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()

	c.kv.SetJSON(ctx, snapshotStorageKey, storage.StoreSettings, snap, false)
	return snap, nil
}

// GetPrice returns the raw ask/bid for hrid at enhancementLevel, or
// ok=false if the item is unknown. The reserved coin fast path bypasses
// the snapshot entirely.
func (c *Cache) GetPrice(hrid string, enhancementLevel int) (PricePoint, bool) {
	if hrid == coinHrid {
		return PricePoint{Ask: 1, Bid: 1}, true
	}

	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()
	if snap == nil {
		return PricePoint{}, false
	}

	entry, ok := snap.Items[hrid]
	if !ok {
		return PricePoint{}, false
	}
	if enhancementLevel > 0 {
		if lvl, ok := entry.Levels[enhancementLevel]; ok {
			return lvl, true
		}
		return PricePoint{}, false
	}
	return PricePoint{Ask: entry.Ask, Bid: entry.Bid, AsOf: entry.AsOf}, true
}

// GetItemPrice resolves a single number per opts, following the fallback
// chain market -> crafting cost -> vendor -> nil for base items (spec
// §4.5 "getItemPrice"). Never returns NaN/Inf; missing data is ok=false.
func (c *Cache) GetItemPrice(hrid string, opts PriceOptions) (float64, bool) {
	side := c.resolveSide(opts)

	if p, ok := c.GetPrice(hrid, opts.EnhancementLevel); ok {
		if side == SideBid {
			return p.Bid, true
		}
		return p.Ask, true
	}

	if opts.EnhancementLevel == 0 {
		if cost, ok := c.craftingCost(hrid, side); ok {
			return cost, true
		}
		if c.vendor != nil {
			if coins, ok := c.vendor.VendorPrice(hrid); ok {
				return coins, true
			}
		}
	}

	return 0, false
}

func (c *Cache) resolveSide(opts PriceOptions) Side {
	if opts.Mode != "" {
		return opts.Mode
	}
	if opts.Context != "" && opts.Context != ContextDefault && c.modes != nil {
		return c.modes.ModeFor(opts.Context)
	}
	if opts.Side != "" {
		return opts.Side
	}
	return SideAsk
}

// craftingCost recursively prices a craftable item's ingredients, applying
// the artisan reduction and upgrade cost (spec §4.5 "crafting production
// cost (recursively priced inputs + 0.9x artisan reduction + upgrade cost)").
func (c *Cache) craftingCost(hrid string, side Side) (float64, bool) {
	if c.recipe == nil {
		return 0, false
	}
	ingredients, upgradeCost, ok := c.recipe.Recipe(hrid)
	if !ok {
		return 0, false
	}

	c.mu.RLock()
	artisan := c.artisan
	c.mu.RUnlock()

	total := upgradeCost
	for ingredientHrid, qty := range ingredients {
		price, ok := c.GetItemPrice(ingredientHrid, PriceOptions{Side: side})
		if !ok {
			return 0, false
		}
		total += price * qty * artisan
	}
	return total, true
}

// ClearCacheAndRefetch clears the in-memory and persisted snapshot and
// forces a fresh fetch (spec §4.5 "Invalidation").
func (c *Cache) ClearCacheAndRefetch(ctx context.Context) *Snapshot {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
	c.kv.Delete(ctx, snapshotStorageKey, storage.StoreSettings)
	return c.Fetch(ctx, true)
}
