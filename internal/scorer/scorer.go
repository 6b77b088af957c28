// Package scorer implements the v2 weighted alert score: a two-factor
// model (wallet contribution + impact contribution) with the
// classification bands from spec.md §4.5. The source's three-factor
// model (wallet/impact/extremity) is represented only by the always-0
// ExtremityContribution field per the design note in spec.md §9.
package scorer

import "github.com/liamashdown/insiderwatch/internal/model"

const (
	weightWallet = 0.60
	weightImpact = 0.40

	pointsCexFunded             = 25
	pointsLowTradeCount         = 20
	pointsYoungAccount          = 15
	pointsHighConcentration     = 15
	pointsFreshFatBet           = 25
	pointsLowVolume             = 10
	pointsHighPolymarketNetflow = 10
	pointsSinglePurpose         = 5
	pointsSuspiciousBase        = 15
)

// Score combines a TradeSignal and WalletFingerprint into an
// AlertScore.
func Score(signal model.TradeSignal, fp model.WalletFingerprint) model.AlertScore {
	fWallet := scoreWallet(fp)
	fImpact := scoreImpact(signal.OiPercentage, signal.PriceImpact)

	walletContribution := weightWallet * fWallet
	impactContribution := weightImpact * fImpact

	total := roundToInt(walletContribution + impactContribution)

	return model.AlertScore{
		TotalScore: total,
		Breakdown: model.ScoreBreakdown{
			WalletContribution: walletContribution,
			ImpactContribution: impactContribution,
		},
		Classification: classify(total),
	}
}

// scoreWallet sums per-flag points across both flag sets, capped at
// 100, plus the isSuspicious base bonus.
func scoreWallet(fp model.WalletFingerprint) float64 {
	var points float64

	if boolValue(fp.Flags.CexFunded) {
		points += pointsCexFunded
	}
	if boolValue(fp.Flags.LowTxCount) || fp.SubgraphFlags.LowTradeCount {
		points += pointsLowTradeCount
	}
	if boolValue(fp.Flags.YoungWallet) || fp.SubgraphFlags.YoungAccount {
		points += pointsYoungAccount
	}
	if fp.SubgraphFlags.HighConcentration {
		points += pointsHighConcentration
	}
	if fp.SubgraphFlags.FreshFatBet {
		points += pointsFreshFatBet
	}
	if fp.SubgraphFlags.LowVolume {
		points += pointsLowVolume
	}
	if boolValue(fp.Flags.HighPolymarketNetflow) {
		points += pointsHighPolymarketNetflow
	}
	if boolValue(fp.Flags.SinglePurpose) {
		points += pointsSinglePurpose
	}
	if fp.IsSuspicious {
		points += pointsSuspiciousBase
	}

	if points > 100 {
		points = 100
	}
	return points
}

// scoreImpact blends the OI-percentage and price-impact signals.
func scoreImpact(oiPercentage, priceImpact float64) float64 {
	impact := 60*oiPercentage/100 + 40*priceImpact/100
	if impact > 100 {
		return 100
	}
	if impact < 0 {
		return 0
	}
	return impact
}

func classify(total int) model.Classification {
	switch {
	case total >= 85:
		return model.ClassificationAlertStrongInsider
	case total >= 70:
		return model.ClassificationAlertHigh
	case total >= 50:
		return model.ClassificationAlertMedium
	default:
		return model.ClassificationLogOnly
	}
}

func boolValue(b *bool) bool {
	return b != nil && *b
}

func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}
