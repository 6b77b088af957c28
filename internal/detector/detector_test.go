package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/liamashdown/insiderwatch/internal/breaker"
	"github.com/liamashdown/insiderwatch/internal/config"
	"github.com/liamashdown/insiderwatch/internal/market"
	"github.com/liamashdown/insiderwatch/internal/model"
	"github.com/liamashdown/insiderwatch/internal/polymarket/gammaapi"
)

type fakeMarketStore struct {
	markets []model.Market
}

func (f fakeMarketStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return f.markets, nil
}

func newTestRegistry(t *testing.T, markets ...model.Market) *market.Registry {
	t.Helper()
	r := market.New(fakeMarketStore{markets: markets})
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("reload registry: %v", err)
	}
	return r
}

func newTestGammaClient(t *testing.T, liquidity float64) *gammaapi.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]gammaapi.Market{{LiquidityNum: liquidity}})
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{GammaAPIBaseURL: srv.URL, GammaAPIMarketsRPS: 100}
	return gammaapi.NewClient(cfg, breaker.NewRegistry())
}

func TestAnalyzeDropsUnknownMarket(t *testing.T) {
	registry := newTestRegistry(t)
	gamma := newTestGammaClient(t, 100000)
	d := New(registry, gamma, Thresholds{AbsoluteMinUSD: 5000, RelativeLiquidityFactor: 0.5}, logrus.New())

	signal, reason, err := d.Analyze(context.Background(), model.Trade{MarketID: "nope", Size: 10, Price: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal != nil {
		t.Fatal("expected no signal for an unknown market")
	}
	if reason != ReasonUnknownMarket {
		t.Fatalf("expected %s, got %s", ReasonUnknownMarket, reason)
	}
}

func TestAnalyzeDropsBelowMarketAwareMinimum(t *testing.T) {
	registry := newTestRegistry(t, model.Market{ID: "m1", ConditionID: "c1", Enabled: true, Active: true, OpenInterest: 1000})
	// Liquidity 1000 * RelativeLiquidityFactor 0.5 = 500, well below AbsoluteMinUSD 5000,
	// so the relative threshold governs and a $400 trade should be dropped.
	gamma := newTestGammaClient(t, 1000)
	d := New(registry, gamma, Thresholds{AbsoluteMinUSD: 5000, RelativeLiquidityFactor: 0.5, MinOiPercentage: 20, MinPriceImpact: 20}, logrus.New())

	signal, reason, err := d.Analyze(context.Background(), model.Trade{MarketID: "m1", Size: 400, Price: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal != nil {
		t.Fatal("expected the trade to be dropped below the market-aware minimum")
	}
	if reason != ReasonBelowMinimum {
		t.Fatalf("expected %s, got %s", ReasonBelowMinimum, reason)
	}
}

func TestAnalyzeDropsBelowImpactGate(t *testing.T) {
	registry := newTestRegistry(t, model.Market{ID: "m1", ConditionID: "c1", Enabled: true, Active: true, OpenInterest: 1000000})
	gamma := newTestGammaClient(t, 1000000)
	d := New(registry, gamma, Thresholds{AbsoluteMinUSD: 100, RelativeLiquidityFactor: 0.5, MinOiPercentage: 20, MinPriceImpact: 20}, logrus.New())

	// $1000 trade against $1M OI/liquidity: oi%=0.1, impact=0.05 - both well under the 20 gate.
	signal, reason, err := d.Analyze(context.Background(), model.Trade{MarketID: "m1", Size: 1000, Price: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal != nil {
		t.Fatal("expected the trade to be dropped below the impact gate")
	}
	if reason != ReasonBelowImpact {
		t.Fatalf("expected %s, got %s", ReasonBelowImpact, reason)
	}
}

func TestAnalyzePassesGate(t *testing.T) {
	registry := newTestRegistry(t, model.Market{ID: "m1", ConditionID: "c1", Enabled: true, Active: true, OpenInterest: 10000})
	gamma := newTestGammaClient(t, 10000)
	d := New(registry, gamma, Thresholds{AbsoluteMinUSD: 100, RelativeLiquidityFactor: 0.5, MinOiPercentage: 20, MinPriceImpact: 20}, logrus.New())

	// $5000 trade against $10k OI: oi%=50, well above the 20 gate.
	signal, reason, err := d.Analyze(context.Background(), model.Trade{MarketID: "m1", Size: 5000, Price: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal == nil {
		t.Fatalf("expected a signal to pass the gate, got drop reason %s", reason)
	}
	if signal.OiPercentage != 50 {
		t.Errorf("expected oi%% 50, got %v", signal.OiPercentage)
	}
}

func TestAnalyzeSkipsDisabledMarket(t *testing.T) {
	registry := newTestRegistry(t, model.Market{ID: "m1", ConditionID: "c1", Enabled: false, Active: true})
	gamma := newTestGammaClient(t, 10000)
	d := New(registry, gamma, Thresholds{AbsoluteMinUSD: 100, RelativeLiquidityFactor: 0.5}, logrus.New())

	signal, reason, err := d.Analyze(context.Background(), model.Trade{MarketID: "m1", Size: 5000, Price: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal != nil || reason != ReasonUnknownMarket {
		t.Fatalf("expected a disabled market to be treated as unanalyzable, got signal=%v reason=%s", signal, reason)
	}
}

func TestEstimatePriceImpact(t *testing.T) {
	tests := []struct {
		tradeUsd, liquidity float64
		want                float64
	}{
		{0, 100, 0},
		{50, 100, 25},
		{100, 100, 50},
		{1000, 0, 100},
		{1000, 1, 100},
	}
	for _, tt := range tests {
		got := estimatePriceImpact(tt.tradeUsd, tt.liquidity)
		if got != tt.want {
			t.Errorf("estimatePriceImpact(%v, %v) = %v, want %v", tt.tradeUsd, tt.liquidity, got, tt.want)
		}
	}
}
