package position

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"tradecore/pkg/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewPositionBuy(t *testing.T) {
	t.Parallel()
	s := NewStore()

	pos := s.ApplyFill("AAPL", types.BUY, d("100"), d("150.50"))

	if !pos.Quantity.Equal(d("100")) {
		t.Errorf("quantity = %s, want 100", pos.Quantity)
	}
	if !pos.AveragePrice.Equal(d("150.50")) {
		t.Errorf("average = %s, want 150.50", pos.AveragePrice)
	}
	if !pos.LastPrice.Equal(d("150.50")) {
		t.Errorf("last price = %s, want 150.50", pos.LastPrice)
	}
}

func TestNewPositionSellGoesShort(t *testing.T) {
	t.Parallel()
	s := NewStore()

	pos := s.ApplyFill("AAPL", types.SELL, d("40"), d("150"))

	if !pos.Quantity.Equal(d("-40")) {
		t.Errorf("quantity = %s, want -40", pos.Quantity)
	}
	if !pos.AveragePrice.Equal(d("150")) {
		t.Errorf("average = %s, want 150", pos.AveragePrice)
	}
}

func TestSameDirectionAddWeightsAverage(t *testing.T) {
	t.Parallel()
	s := NewStore()

	s.ApplyFill("AAPL", types.BUY, d("100"), d("100"))
	pos := s.ApplyFill("AAPL", types.BUY, d("100"), d("110"))

	if !pos.Quantity.Equal(d("200")) {
		t.Errorf("quantity = %s, want 200", pos.Quantity)
	}
	if !pos.AveragePrice.Equal(d("105")) {
		t.Errorf("average = %s, want 105", pos.AveragePrice)
	}
}

func TestShortAddWeightsAverage(t *testing.T) {
	t.Parallel()
	s := NewStore()

	s.ApplyFill("AAPL", types.SELL, d("50"), d("200"))
	pos := s.ApplyFill("AAPL", types.SELL, d("150"), d("220"))

	if !pos.Quantity.Equal(d("-200")) {
		t.Errorf("quantity = %s, want -200", pos.Quantity)
	}
	// (50·200 + 150·220) / 200 = 215
	if !pos.AveragePrice.Equal(d("215")) {
		t.Errorf("average = %s, want 215", pos.AveragePrice)
	}
}

func TestOppositePartialKeepsAverage(t *testing.T) {
	t.Parallel()
	s := NewStore()

	s.ApplyFill("AAPL", types.BUY, d("100"), d("150"))
	pos := s.ApplyFill("AAPL", types.SELL, d("30"), d("160"))

	if !pos.Quantity.Equal(d("70")) {
		t.Errorf("quantity = %s, want 70", pos.Quantity)
	}
	if !pos.AveragePrice.Equal(d("150")) {
		t.Errorf("average = %s, want 150 (unchanged on reduction)", pos.AveragePrice)
	}
	if !pos.LastPrice.Equal(d("160")) {
		t.Errorf("last price = %s, want 160", pos.LastPrice)
	}
}

func TestExactFlatKeepsRowAtFillPrice(t *testing.T) {
	t.Parallel()
	s := NewStore()

	s.ApplyFill("AAPL", types.BUY, d("100"), d("150"))
	pos := s.ApplyFill("AAPL", types.SELL, d("100"), d("155"))

	if !pos.Quantity.IsZero() {
		t.Errorf("quantity = %s, want 0", pos.Quantity)
	}
	if !pos.AveragePrice.Equal(d("155")) {
		t.Errorf("average = %s, want 155 (fill price on flat)", pos.AveragePrice)
	}

	// Next fill of either side opens cleanly.
	pos = s.ApplyFill("AAPL", types.SELL, d("10"), d("158"))
	if !pos.Quantity.Equal(d("-10")) || !pos.AveragePrice.Equal(d("158")) {
		t.Errorf("reopen = %s @ %s, want -10 @ 158", pos.Quantity, pos.AveragePrice)
	}
}

func TestSignCrossOpensResidualOppositeSide(t *testing.T) {
	t.Parallel()
	s := NewStore()

	s.ApplyFill("AAPL", types.BUY, d("100"), d("150"))
	pos := s.ApplyFill("AAPL", types.SELL, d("130"), d("140"))

	if !pos.Quantity.Equal(d("-30")) {
		t.Errorf("quantity = %s, want -30", pos.Quantity)
	}
	if !pos.AveragePrice.Equal(d("140")) {
		t.Errorf("average = %s, want 140 (residual at fill price)", pos.AveragePrice)
	}
}

func TestRepeatedBuysSamePrice(t *testing.T) {
	t.Parallel()
	s := NewStore()

	// After N buys of q at p the position is N·q at average p exactly.
	for i := 0; i < 5; i++ {
		s.ApplyFill("AAPL", types.BUY, d("100"), d("150.50"))
	}

	pos, ok := s.Position("AAPL")
	if !ok {
		t.Fatal("position missing")
	}
	if !pos.Quantity.Equal(d("500")) {
		t.Errorf("quantity = %s, want 500", pos.Quantity)
	}
	if !pos.AveragePrice.Equal(d("150.50")) {
		t.Errorf("average = %s, want 150.50", pos.AveragePrice)
	}
}

func TestPositionMissing(t *testing.T) {
	t.Parallel()
	s := NewStore()

	if _, ok := s.Position("MSFT"); ok {
		t.Error("expected absence for unknown symbol")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	t.Parallel()
	s := NewStore()

	s.ApplyFill("AAPL", types.BUY, d("100"), d("150"))
	snap := s.Snapshot()
	snap["AAPL"] = types.Position{Symbol: "AAPL", Quantity: d("999")}

	pos, _ := s.Position("AAPL")
	if !pos.Quantity.Equal(d("100")) {
		t.Errorf("store mutated through snapshot: quantity = %s", pos.Quantity)
	}
}

func TestConcurrentFillsDistinctSymbols(t *testing.T) {
	t.Parallel()
	s := NewStore()

	symbols := []string{"AAPL", "MSFT", "TSLA", "AMZN"}
	var wg sync.WaitGroup
	for _, sym := range symbols {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(sym string) {
				defer wg.Done()
				s.ApplyFill(sym, types.BUY, d("4"), d("10"))
			}(sym)
		}
	}
	wg.Wait()

	for _, sym := range symbols {
		pos, ok := s.Position(sym)
		if !ok {
			t.Fatalf("position %s missing", sym)
		}
		if !pos.Quantity.Equal(d("100")) {
			t.Errorf("%s quantity = %s, want 100", sym, pos.Quantity)
		}
	}
}
