package settings

import "github.com/toolasha/agent/internal/market"

// PricingModeResolver implements market.PricingModeResolver over a Manager,
// resolving the user's profit_pricingMode / profit_networthPricingMode
// settings to a market.Side (spec §4.5 "context: 'profit' | 'networth' |
// 'default'").
type PricingModeResolver struct {
	mgr *Manager
}

// NewPricingModeResolver wraps mgr as a market.PricingModeResolver.
func NewPricingModeResolver(mgr *Manager) *PricingModeResolver {
	return &PricingModeResolver{mgr: mgr}
}

// ModeFor resolves ctx to a Side, defaulting to SideAsk for any context or
// setting value this resolver doesn't recognize.
func (r *PricingModeResolver) ModeFor(ctx market.Context) market.Side {
	key := "profit_pricingMode"
	if ctx == market.ContextNetworth {
		key = "profit_networthPricingMode"
	}

	v, ok := r.mgr.Get(key)
	if !ok {
		return market.SideAsk
	}
	if s, ok := v.(string); ok && s == string(market.SideBid) {
		return market.SideBid
	}
	return market.SideAsk
}
