package pricing

import (
	"math"
	"testing"
)

func TestNew_RejectsNonPositiveB(t *testing.T) {
	for _, b := range []float64{0, -1, -20000} {
		if _, err := New(b); err != ErrInvalidLiquidity {
			t.Errorf("b=%v: expected ErrInvalidLiquidity, got %v", b, err)
		}
	}
}

func TestPrices_FreshMarketIsFiftyFifty(t *testing.T) {
	e, _ := New(20000)
	prices, err := e.Prices([]float64{0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prices[0] != 0.5 || prices[1] != 0.5 {
		t.Errorf("expected [0.5 0.5], got %v", prices)
	}
}

func TestPrices_BinarySumToOne(t *testing.T) {
	e, _ := New(20000)
	tests := []struct {
		qYes, qNo float64
	}{
		{0, 0},
		{1000, 0},
		{0, 1000},
		{50000, 10000},
		{-30000, 20000},
		{1e7, -1e7},
	}
	for _, tt := range tests {
		pYes := e.PriceYes(tt.qYes, tt.qNo)
		pNo := 1 - pYes
		if pYes <= 0 || pYes >= 1 {
			t.Errorf("q=(%v,%v): pYes=%v out of (0,1)", tt.qYes, tt.qNo, pYes)
		}
		if math.Abs(pYes+pNo-1) > 1e-9 {
			t.Errorf("q=(%v,%v): prices sum to %v", tt.qYes, tt.qNo, pYes+pNo)
		}
	}
}

func TestPrices_MultiOutcomeSumToOne(t *testing.T) {
	e, _ := New(5000)
	tests := [][]float64{
		{0, 0, 0},
		{100, 200, 300},
		{-5000, 0, 5000, 10000},
		{1e6, 2e6, 3e6, 4e6, 5e6},
	}
	for _, demand := range tests {
		prices, err := e.Prices(demand)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var sum float64
		for _, p := range prices {
			if p <= 0 || p >= 1 {
				t.Errorf("demand=%v: price %v out of (0,1)", demand, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("demand=%v: prices sum to %v", demand, sum)
		}
	}
}

func TestPrices_NoOverflowForExtremeDemand(t *testing.T) {
	e, _ := New(100)
	// q/b = 1e13, far beyond the float64 exp overflow point of ~709.
	prices, err := e.Prices([]float64{1e15, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Fatalf("overflow leaked into prices: %v", prices)
		}
	}
	if prices[0] < prices[1] {
		t.Errorf("dominant outcome should carry the probability mass: %v", prices)
	}
}

func TestPrices_EmptyDemand(t *testing.T) {
	e, _ := New(100)
	if _, err := e.Prices(nil); err != ErrNoOutcomes {
		t.Errorf("expected ErrNoOutcomes, got %v", err)
	}
}

func TestTradeCost_Properties(t *testing.T) {
	e, _ := New(100)
	demand := []float64{0, 0}

	buy := e.TradeCost(demand, 0, 10)
	if buy <= 0 {
		t.Errorf("buying should cost a positive amount, got %v", buy)
	}

	sell := e.TradeCost([]float64{10, 0}, 0, -10)
	if sell >= 0 {
		t.Errorf("selling should return money, got %v", sell)
	}

	// Path independence: 10 then 5 equals 15 at once.
	seq := e.TradeCost([]float64{0, 0}, 0, 10) + e.TradeCost([]float64{10, 0}, 0, 5)
	direct := e.TradeCost([]float64{0, 0}, 0, 15)
	if math.Abs(seq-direct) > 1e-9 {
		t.Errorf("path dependence: sequential=%v direct=%v", seq, direct)
	}

	// Convexity: the second batch costs more than the first.
	first := e.TradeCost([]float64{0, 0}, 0, 10)
	second := e.TradeCost([]float64{10, 0}, 0, 10)
	if second <= first {
		t.Errorf("cost should be convex: first=%v second=%v", first, second)
	}
}

func TestFillPrice_ZeroDeltaIsSpotPrice(t *testing.T) {
	e, _ := New(20000)
	fill := e.FillPrice([]float64{0, 0}, 0, 0)
	if fill != 0.5 {
		t.Errorf("expected spot price 0.5, got %v", fill)
	}
}

func TestFillPrice_SmallTradeNearSpot(t *testing.T) {
	e, _ := New(20000)
	fill := e.FillPrice([]float64{0, 0}, 0, 0.001)
	if math.Abs(fill-0.5) > 0.001 {
		t.Errorf("tiny trade should fill near 0.5, got %v", fill)
	}
}

func TestSeedDemand(t *testing.T) {
	e, _ := New(20000)

	tests := []struct {
		p  float64
		ok bool
	}{
		{0.5, true},
		{0.011, true},
		{0.989, true},
		{0.01, false},
		{0.99, false},
		{0.001, false},
		{0.999, false},
		{0, false},
		{1, false},
	}
	for _, tt := range tests {
		q, ok := e.SeedDemand(tt.p)
		if ok != tt.ok {
			t.Errorf("p=%v: expected ok=%v, got %v", tt.p, tt.ok, ok)
			continue
		}
		if !ok {
			continue
		}
		// Round trip: the seeded demand must reproduce the probability.
		got := e.PriceYes(q, 0)
		if math.Abs(got-tt.p) > 1e-9 {
			t.Errorf("p=%v: round trip gave %v (q=%v)", tt.p, got, q)
		}
	}
}

func TestSeedDemand_MidpointIsZero(t *testing.T) {
	e, _ := New(20000)
	q, ok := e.SeedDemand(0.5)
	if !ok || q != 0 {
		t.Errorf("p=0.5 should seed q=0, got q=%v ok=%v", q, ok)
	}
}

func TestMaxLoss_Bounded(t *testing.T) {
	e, _ := New(100)
	maxLoss := e.MaxLoss(2)

	// A trader pushes qYes very high and the event happens; the market
	// maker's loss stays under b*ln(2).
	traderPaid := e.TradeCost([]float64{0, 0}, 0, 10000)
	mmLoss := 10000 - traderPaid
	if mmLoss > maxLoss+1e-6 {
		t.Errorf("loss %v exceeds theoretical bound %v", mmLoss, maxLoss)
	}
}

func TestLogSumExp(t *testing.T) {
	if got := logSumExp([]float64{1000, 1001}); math.IsInf(got, 1) || math.IsNaN(got) {
		t.Errorf("logSumExp overflowed: %v", got)
	}
	if got := logSumExp(nil); !math.IsInf(got, -1) {
		t.Errorf("expected -Inf for empty input, got %v", got)
	}
	if got, want := logSumExp([]float64{3, 3}), 3+math.Log(2); math.Abs(got-want) > 1e-12 {
		t.Errorf("logSumExp([3,3])=%v, want %v", got, want)
	}
}
