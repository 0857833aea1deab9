package profit

import (
	"testing"

	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/formula"
	"github.com/toolasha/agent/internal/market"
)

type fakePrices struct {
	prices map[string]float64
}

func (f *fakePrices) GetItemPrice(hrid string, _ market.PriceOptions) (float64, bool) {
	v, ok := f.prices[hrid]
	return v, ok
}

type fakeContainers struct {
	drops map[string][]ContainerDrop
}

func (f *fakeContainers) Drops(hrid string) ([]ContainerDrop, bool) {
	d, ok := f.drops[hrid]
	return d, ok
}

func TestContainerValuesSimpleDropTable(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{"/items/cheese": 10}}
	containers := &fakeContainers{drops: map[string][]ContainerDrop{
		"/items/chest": {{ItemHrid: "/items/cheese", DropRate: 1, MinCount: 2, MaxCount: 2}},
	}}
	f, err := formula.NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(f.Close)

	calc := NewCalculator(prices, containers, f, zap.NewNop())
	result := calc.ContainerValues([]string{"/items/chest"}, market.PriceOptions{Side: market.SideAsk})

	got, ok := result["/items/chest"]
	if !ok {
		t.Fatal("expected a result for /items/chest")
	}
	if got.HasMissingPrices {
		t.Fatal("expected no missing prices")
	}
	if got.Value != 20 {
		t.Fatalf("expected value 20 (2 cheese * 10), got %v", got.Value)
	}
}

func TestContainerValuesMissingPriceFlagged(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{}}
	containers := &fakeContainers{drops: map[string][]ContainerDrop{
		"/items/chest": {{ItemHrid: "/items/unknown", DropRate: 1, MinCount: 1, MaxCount: 1}},
	}}
	f, err := formula.NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(f.Close)

	calc := NewCalculator(prices, containers, f, zap.NewNop())
	result := calc.ContainerValues([]string{"/items/chest"}, market.PriceOptions{Side: market.SideAsk})

	if !result["/items/chest"].HasMissingPrices {
		t.Fatal("expected HasMissingPrices for an unpriced drop")
	}
}

func TestContainerValuesCyclicDropTableConverges(t *testing.T) {
	// Chest A drops chest B and chest B drops chest A, each also dropping a
	// priced item. The fixed-point iteration must terminate (bounded by
	// ContainerPriceIterations) rather than recursing forever.
	prices := &fakePrices{prices: map[string]float64{"/items/gem": 5}}
	containers := &fakeContainers{drops: map[string][]ContainerDrop{
		"/items/chestA": {
			{ItemHrid: "/items/gem", DropRate: 1, MinCount: 1, MaxCount: 1},
			{ItemHrid: "/items/chestB", DropRate: 1, MinCount: 1, MaxCount: 1},
		},
		"/items/chestB": {
			{ItemHrid: "/items/gem", DropRate: 1, MinCount: 1, MaxCount: 1},
			{ItemHrid: "/items/chestA", DropRate: 1, MinCount: 1, MaxCount: 1},
		},
	}}
	f, err := formula.NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(f.Close)

	calc := NewCalculator(prices, containers, f, zap.NewNop())
	result := calc.ContainerValues([]string{"/items/chestA", "/items/chestB"}, market.PriceOptions{Side: market.SideAsk})

	if result["/items/chestA"].Value <= 0 {
		t.Fatal("expected a positive converged value for chestA")
	}
	if result["/items/chestB"].Value <= 0 {
		t.Fatal("expected a positive converged value for chestB")
	}
}

func TestContainerValuesNilContainerBookFlagsMissing(t *testing.T) {
	calc := NewCalculator(&fakePrices{}, nil, nil, zap.NewNop())
	result := calc.ContainerValues([]string{"/items/chest"}, market.PriceOptions{Side: market.SideAsk})
	if !result["/items/chest"].HasMissingPrices {
		t.Fatal("expected missing prices with no container book")
	}
}
