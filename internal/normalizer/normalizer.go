// Package normalizer converts each data-source adapter's native
// response into the common NormalizedWallet shape, scores how much of
// it is trustworthy, and merges two normalized records into one when
// both sources answered. Grounded on the teacher's own
// internal/processor.go wallet-building logic, generalized from a
// single source into the two-source fusion spec.md §4.3 describes.
package normalizer

import (
	"time"

	"github.com/liamashdown/insiderwatch/internal/model"
	"github.com/liamashdown/insiderwatch/internal/polymarket/dataapi"
	"github.com/liamashdown/insiderwatch/internal/polymarket/indexer"
)

// NormalizePlatform converts a dataapi.UserData into a NormalizedWallet.
// data may be nil (the platform adapter had nothing), in which case an
// all-zero record with zero confidence is returned.
func NormalizePlatform(address string, data *dataapi.UserData) model.NormalizedWallet {
	confidence := 100
	var reasons []string

	if data == nil {
		return model.NormalizedWallet{
			Address:    address,
			DataSource: model.SourcePlatform,
			Confidence: model.Confidence{
				Level:   model.LevelForScore(0),
				Score:   0,
				Reasons: []string{"no platform data"},
			},
			Warnings: []string{"platform adapter returned no data"},
		}
	}

	if len(data.Activity) == 0 {
		confidence -= 50
		reasons = append(reasons, "no activity history")
	}
	if len(data.RecentTrades) == 0 {
		confidence -= 20
		reasons = append(reasons, "no recent trades")
	}
	if len(data.Positions) == 0 && len(data.ClosedPositions) == 0 {
		confidence -= 20
		reasons = append(reasons, "no position history")
	}

	var firstTS, lastTS int64
	var volumeUSD float64
	for _, t := range data.RecentTrades {
		v := t.USDCSize
		if v == 0 {
			v = t.Size * t.Price
		}
		volumeUSD += v
		if firstTS == 0 || t.Timestamp < firstTS {
			firstTS = t.Timestamp
		}
		if t.Timestamp > lastTS {
			lastTS = t.Timestamp
		}
	}
	for _, a := range data.Activity {
		if firstTS == 0 || a.Timestamp < firstTS {
			firstTS = a.Timestamp
		}
	}

	marketSeen := make(map[string]struct{})
	for _, t := range data.RecentTrades {
		marketSeen[t.ConditionID] = struct{}{}
	}
	for _, p := range data.Positions {
		marketSeen[p.ConditionID] = struct{}{}
	}
	for _, p := range data.ClosedPositions {
		marketSeen[p.ConditionID] = struct{}{}
	}

	var accountAgeDays int
	if firstTS > 0 {
		accountAgeDays = daysSince(firstTS)
	}

	confidence = clampScore(confidence)

	return model.NormalizedWallet{
		Address:             address,
		TradeCount:          len(data.RecentTrades),
		VolumeUSD:           volumeUSD,
		AccountAgeDays:      accountAgeDays,
		FirstTradeTimestamp: firstTS,
		LastTradeTimestamp:  lastTS,
		MarketsTraded:       len(marketSeen),
		DataSource:          model.SourcePlatform,
		Confidence: model.Confidence{
			Level:   model.LevelForScore(confidence),
			Score:   confidence,
			Reasons: reasons,
		},
	}
}

// NormalizeIndexer converts activity+positions from the subgraph into
// a NormalizedWallet. Either argument may be nil.
func NormalizeIndexer(address string, activity *indexer.UserActivity, positions *indexer.UserPositions) model.NormalizedWallet {
	confidence := 100
	var reasons []string

	if activity == nil && positions == nil {
		return model.NormalizedWallet{
			Address:    address,
			DataSource: model.SourceIndexer,
			Confidence: model.Confidence{
				Level:   model.LevelForScore(0),
				Score:   0,
				Reasons: []string{"no indexer data"},
			},
			Warnings: []string{"indexer adapter returned no data"},
		}
	}

	var tradeCount int
	var volumeUSD float64
	var firstTS, lastTS int64
	var accountAgeDays int

	if activity != nil {
		tradeCount = activity.TradeCount
		volumeUSD = activity.VolumeUSD
		firstTS = activity.FirstTradeTS
		lastTS = activity.LastTradeTS
		accountAgeDays = activity.AccountAgeDay
	} else {
		confidence -= 50
		reasons = append(reasons, "no activity history")
	}

	var marketsTraded int
	if positions != nil {
		marketsTraded = positions.MarketsTraded
		if marketsTraded == 0 {
			marketsTraded = len(uniqueMarkets(positions.Positions))
		}
	} else {
		confidence -= 20
		reasons = append(reasons, "no position history")
	}

	confidence = clampScore(confidence)

	return model.NormalizedWallet{
		Address:             address,
		TradeCount:          tradeCount,
		VolumeUSD:           volumeUSD,
		AccountAgeDays:      accountAgeDays,
		FirstTradeTimestamp: firstTS,
		LastTradeTimestamp:  lastTS,
		MarketsTraded:       marketsTraded,
		DataSource:          model.SourceIndexer,
		Confidence: model.Confidence{
			Level:   model.LevelForScore(confidence),
			Score:   confidence,
			Reasons: reasons,
		},
	}
}

// ValidationResult is validateConsistency's output.
type ValidationResult struct {
	IsValid    bool
	Errors     []string
	Warnings   []string
	Confidence int
}

// ValidateConsistency cross-checks two normalized records for the same
// wallet and reports divergences per spec.md §4.3.
func ValidateConsistency(a, b model.NormalizedWallet) ValidationResult {
	confidence := 100
	var errs, warnings []string

	if a.TradeCount == 0 && b.TradeCount > 0 || b.TradeCount == 0 && a.TradeCount > 0 {
		errs = append(errs, "one source reports zero trade activity while the other reports activity")
		confidence -= 50
	} else if divergencePct(float64(a.TradeCount), float64(b.TradeCount)) > 10 {
		warnings = append(warnings, "trade count divergence exceeds 10%")
		confidence -= 10
	}

	mean := (a.VolumeUSD + b.VolumeUSD) / 2
	if mean > 100 && divergencePct(a.VolumeUSD, b.VolumeUSD) > 15 {
		warnings = append(warnings, "volume divergence exceeds 15%")
		confidence -= 15
	}

	if absInt(a.AccountAgeDays-b.AccountAgeDays) > 1 {
		warnings = append(warnings, "account age divergence exceeds 1 day")
		confidence -= 5
	}

	confidence = clampScore(confidence)

	return ValidationResult{
		IsValid:    len(errs) == 0,
		Errors:     errs,
		Warnings:   warnings,
		Confidence: confidence,
	}
}

// Merge combines platform and indexer records per spec.md §4.3. Either
// argument may be nil; if both are nil, Merge panics (callers must not
// call it with nothing to merge).
func Merge(platform, indexer *model.NormalizedWallet) model.NormalizedWallet {
	switch {
	case platform == nil && indexer == nil:
		panic("normalizer: merge called with no inputs")
	case platform == nil:
		return *indexer
	case indexer == nil:
		return *platform
	}

	validation := ValidateConsistency(*platform, *indexer)

	merged := model.NormalizedWallet{
		Address:             platform.Address,
		TradeCount:          maxInt(platform.TradeCount, indexer.TradeCount),
		VolumeUSD:           maxFloat(platform.VolumeUSD, indexer.VolumeUSD),
		MarketsTraded:       maxInt(platform.MarketsTraded, indexer.MarketsTraded),
		AccountAgeDays:      platform.AccountAgeDays,
		FirstTradeTimestamp: minNonZero(platform.FirstTradeTimestamp, indexer.FirstTradeTimestamp),
		LastTradeTimestamp:  maxInt64(platform.LastTradeTimestamp, indexer.LastTradeTimestamp),
		WinRate:             platform.WinRate,
		Pnl:                 platform.Pnl,
		DataSource:          model.SourceCombined,
		Confidence: model.Confidence{
			Level:   model.LevelForScore(validation.Confidence),
			Score:   validation.Confidence,
			Reasons: append(append([]string{}, platform.Confidence.Reasons...), indexer.Confidence.Reasons...),
		},
		Warnings: append(append([]string{}, validation.Warnings...), validation.Errors...),
	}

	return merged
}

func uniqueMarkets(positions []indexer.UserPosition) map[string]struct{} {
	out := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		out[p.MarketID] = struct{}{}
	}
	return out
}

func divergencePct(a, b float64) float64 {
	mean := (a + b) / 2
	if mean == 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return 100 * diff / mean
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minNonZero(a, b int64) int64 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

const secondsPerDay = 86400

func daysSince(unixSeconds int64) int {
	days := (time.Now().Unix() - unixSeconds) / secondsPerDay
	if days < 0 {
		return 0
	}
	return int(days)
}
