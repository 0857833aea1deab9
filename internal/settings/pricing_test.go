package settings

import (
	"context"
	"testing"

	"github.com/toolasha/agent/internal/market"
)

func TestPricingModeResolverReadsConfiguredDefaults(t *testing.T) {
	ctx := context.Background()
	m := testManager()
	m.Load(ctx, "char-1")
	resolver := NewPricingModeResolver(m)

	if got := resolver.ModeFor(market.ContextProfit); got != market.SideAsk {
		t.Fatalf("ModeFor(profit) = %v, want %v (schema default)", got, market.SideAsk)
	}
	if got := resolver.ModeFor(market.ContextNetworth); got != market.SideBid {
		t.Fatalf("ModeFor(networth) = %v, want %v (schema default)", got, market.SideBid)
	}
}

func TestPricingModeResolverFollowsUserChange(t *testing.T) {
	ctx := context.Background()
	m := testManager()
	m.Load(ctx, "char-1")
	resolver := NewPricingModeResolver(m)

	if err := m.Set(ctx, "profit_pricingMode", "bid"); err != nil {
		t.Fatal(err)
	}
	if got := resolver.ModeFor(market.ContextProfit); got != market.SideBid {
		t.Fatalf("ModeFor(profit) after Set = %v, want %v", got, market.SideBid)
	}
}

func TestPricingModeResolverDefaultsToAskWhenUnset(t *testing.T) {
	m := &Manager{}
	resolver := NewPricingModeResolver(m)

	if got := resolver.ModeFor(market.ContextProfit); got != market.SideAsk {
		t.Fatalf("ModeFor with no loaded settings = %v, want %v", got, market.SideAsk)
	}
}
