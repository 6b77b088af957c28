package forensics

import (
	"testing"

	"github.com/liamashdown/insiderwatch/internal/model"
	"github.com/liamashdown/insiderwatch/internal/polymarket/dataapi"
)

func testThresholds() Thresholds {
	return Thresholds{
		LowTradeCount:          10,
		YoungAccountDays:       30,
		LowVolumeUSD:           50000,
		HighConcentrationPct:   70,
		FreshFatBetPriorTrades: 2,
		FreshFatBetSizeUSD:     20000,
		FreshFatBetMaxOI:       500000,
	}
}

func TestMaxPositionShare(t *testing.T) {
	tests := []struct {
		name string
		data *dataapi.UserData
		want float64
	}{
		{"nil data", nil, 0},
		{"no positions", &dataapi.UserData{}, 0},
		{
			name: "one dominant position",
			data: &dataapi.UserData{Positions: []dataapi.Position{
				{CurrentUSD: 80},
				{CurrentUSD: 20},
			}},
			want: 80,
		},
		{
			name: "evenly split",
			data: &dataapi.UserData{Positions: []dataapi.Position{
				{CurrentUSD: 50},
				{CurrentUSD: 50},
			}},
			want: 50,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maxPositionShare(tt.data); got != tt.want {
				t.Errorf("maxPositionShare() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeriveFlagsFreshFatBet(t *testing.T) {
	s := &Service{thresholds: testThresholds()}

	merged := model.NormalizedWallet{TradeCount: 1, AccountAgeDays: 5, VolumeUSD: 100, MarketsTraded: 1}
	tc := TradeContext{TradeSizeUSD: 25000, MarketOI: 100000}

	fp := s.deriveFlags("0xabc", merged, 0, tc)

	if !fp.SubgraphFlags.FreshFatBet {
		t.Error("expected FreshFatBet to trip: few prior trades, large size, low OI")
	}
	if !fp.SubgraphFlags.LowTradeCount {
		t.Error("expected LowTradeCount to trip at trade count 1 <= 10")
	}
	if !fp.SubgraphFlags.YoungAccount {
		t.Error("expected YoungAccount to trip at age 5 <= 30")
	}
	if !fp.IsSuspicious {
		t.Error("expected IsSuspicious with >=3 tripped flags")
	}
}

func TestDeriveFlagsNotSuspiciousWithNoFlags(t *testing.T) {
	s := &Service{thresholds: testThresholds()}

	merged := model.NormalizedWallet{TradeCount: 100, AccountAgeDays: 365, VolumeUSD: 1000000, MarketsTraded: 10}
	tc := TradeContext{TradeSizeUSD: 1000, MarketOI: 1000000}

	fp := s.deriveFlags("0xabc", merged, 20, tc)

	if fp.IsSuspicious {
		t.Error("expected a clean wallet with no tripped flags to not be suspicious")
	}
}

func TestWithFreshFatBetRecomputesOnCacheHit(t *testing.T) {
	s := &Service{thresholds: testThresholds()}

	cached := model.WalletFingerprint{
		Metadata:      model.WalletFingerprintMetadata{TotalTransactions: 1},
		SubgraphFlags: model.SubgraphFlags{LowTradeCount: true, YoungAccount: true},
	}

	got := s.withFreshFatBet(cached, TradeContext{TradeSizeUSD: 25000, MarketOI: 100})

	if !got.SubgraphFlags.FreshFatBet {
		t.Error("expected FreshFatBet to be recomputed true for a large fresh trade against low OI")
	}
	if !got.IsSuspicious {
		t.Error("expected IsSuspicious recomputed with 3 tripped flags")
	}
}

func TestCountTrueIgnoresNilOnChainFlags(t *testing.T) {
	flags := model.WalletFingerprintFlags{} // all nil
	subgraph := model.SubgraphFlags{LowTradeCount: true}

	if got := countTrue(flags, subgraph); got != 1 {
		t.Errorf("expected nil flags to count as 0, got %d", got)
	}
}

func TestCacheKeyFormat(t *testing.T) {
	if got := cacheKey("0xabc"); got != "wallet:fingerprint:0xabc" {
		t.Errorf("unexpected cache key: %s", got)
	}
}
