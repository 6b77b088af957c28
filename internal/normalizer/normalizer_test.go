package normalizer

import (
	"testing"
	"time"

	"github.com/liamashdown/insiderwatch/internal/model"
	"github.com/liamashdown/insiderwatch/internal/polymarket/dataapi"
	"github.com/liamashdown/insiderwatch/internal/polymarket/indexer"
)

func TestNormalizePlatformNilData(t *testing.T) {
	got := NormalizePlatform("0xabc", nil)
	if got.Confidence.Score != 0 {
		t.Errorf("expected zero confidence for nil data, got %d", got.Confidence.Score)
	}
	if len(got.Warnings) == 0 {
		t.Error("expected a warning when the platform adapter returns no data")
	}
}

func TestNormalizePlatformConfidenceDeductions(t *testing.T) {
	data := &dataapi.UserData{}
	got := NormalizePlatform("0xabc", data)

	// no activity (-50), no recent trades (-20), no positions (-20) = 10
	if got.Confidence.Score != 10 {
		t.Errorf("expected confidence 10 after all three deductions, got %d", got.Confidence.Score)
	}
}

func TestNormalizePlatformPrefersUSDCSize(t *testing.T) {
	now := time.Now().Unix()
	data := &dataapi.UserData{
		RecentTrades: []dataapi.Trade{
			{USDCSize: 500, Size: 10, Price: 1, Timestamp: now - 86400, ConditionID: "c1"},
			{Size: 5, Price: 2, Timestamp: now, ConditionID: "c2"}, // falls back to size*price = 10
		},
	}
	got := NormalizePlatform("0xabc", data)

	if got.VolumeUSD != 510 {
		t.Errorf("expected volume 500+10=510, got %v", got.VolumeUSD)
	}
	if got.MarketsTraded != 2 {
		t.Errorf("expected 2 distinct markets, got %d", got.MarketsTraded)
	}
}

func TestNormalizeIndexerBothNil(t *testing.T) {
	got := NormalizeIndexer("0xabc", nil, nil)
	if got.Confidence.Score != 0 {
		t.Errorf("expected zero confidence when both indexer sources are nil, got %d", got.Confidence.Score)
	}
}

func TestNormalizeIndexerPartialData(t *testing.T) {
	activity := &indexer.UserActivity{TradeCount: 5, VolumeUSD: 1000, AccountAgeDay: 10}
	got := NormalizeIndexer("0xabc", activity, nil)

	// only the missing positions deduction (-20) applies
	if got.Confidence.Score != 80 {
		t.Errorf("expected confidence 80, got %d", got.Confidence.Score)
	}
	if got.TradeCount != 5 {
		t.Errorf("expected trade count carried from activity, got %d", got.TradeCount)
	}
}

func TestValidateConsistencyZeroVsNonzeroIsMajorDiscrepancy(t *testing.T) {
	a := model.NormalizedWallet{TradeCount: 0}
	b := model.NormalizedWallet{TradeCount: 5}

	result := ValidateConsistency(a, b)
	if result.IsValid {
		t.Error("expected zero-vs-nonzero trade count to be flagged invalid")
	}
	if result.Confidence != 50 {
		t.Errorf("expected confidence penalty to 50, got %d", result.Confidence)
	}
}

func TestValidateConsistencyTradeCountDivergence(t *testing.T) {
	a := model.NormalizedWallet{TradeCount: 100}
	b := model.NormalizedWallet{TradeCount: 110} // ~9.5% divergence, under the 10% warning line

	result := ValidateConsistency(a, b)
	if !result.IsValid {
		t.Error("expected under-threshold divergence to remain valid")
	}
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings at ~9.5%% divergence, got %v", result.Warnings)
	}
}

func TestValidateConsistencyVolumeDivergenceAboveThreshold(t *testing.T) {
	a := model.NormalizedWallet{VolumeUSD: 1000}
	b := model.NormalizedWallet{VolumeUSD: 1300} // mean 1150 > 100, divergence ~26%

	result := ValidateConsistency(a, b)
	if !result.IsValid {
		t.Error("volume divergence alone should warn, not invalidate")
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected exactly one warning, got %v", result.Warnings)
	}
	if result.Confidence != 85 {
		t.Errorf("expected confidence 85 after the 15-point volume penalty, got %d", result.Confidence)
	}
}

func TestValidateConsistencyAccountAgeDivergence(t *testing.T) {
	a := model.NormalizedWallet{AccountAgeDays: 10}
	b := model.NormalizedWallet{AccountAgeDays: 13}

	result := ValidateConsistency(a, b)
	if result.Confidence != 95 {
		t.Errorf("expected confidence 95 after the 5-point age penalty, got %d", result.Confidence)
	}
}

func TestMergeReturnsSingleSourceWhenOtherMissing(t *testing.T) {
	platform := &model.NormalizedWallet{Address: "0xabc", TradeCount: 5}

	got := Merge(platform, nil)
	if got.TradeCount != 5 {
		t.Errorf("expected platform-only record to pass through unchanged, got %+v", got)
	}
}

func TestMergeTakesMaxOfNumericFields(t *testing.T) {
	platform := &model.NormalizedWallet{
		Address:             "0xabc",
		TradeCount:          5,
		VolumeUSD:           1000,
		AccountAgeDays:      30,
		FirstTradeTimestamp: 100,
		LastTradeTimestamp:  500,
	}
	idx := &model.NormalizedWallet{
		TradeCount:          8,
		VolumeUSD:           900,
		AccountAgeDays:      25,
		FirstTradeTimestamp: 50,
		LastTradeTimestamp:  600,
	}

	got := Merge(platform, idx)

	if got.TradeCount != 8 {
		t.Errorf("expected max trade count 8, got %d", got.TradeCount)
	}
	if got.VolumeUSD != 1000 {
		t.Errorf("expected max volume 1000, got %v", got.VolumeUSD)
	}
	if got.AccountAgeDays != 30 {
		t.Errorf("expected platform-preferred account age 30, got %d", got.AccountAgeDays)
	}
	if got.FirstTradeTimestamp != 50 {
		t.Errorf("expected min first-trade timestamp 50, got %d", got.FirstTradeTimestamp)
	}
	if got.LastTradeTimestamp != 600 {
		t.Errorf("expected max last-trade timestamp 600, got %d", got.LastTradeTimestamp)
	}
	if got.DataSource != model.SourceCombined {
		t.Errorf("expected combined data source, got %s", got.DataSource)
	}
}

func TestMergePanicsWithNoInputs(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected Merge(nil, nil) to panic")
		}
	}()
	Merge(nil, nil)
}
