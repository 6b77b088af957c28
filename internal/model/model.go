// Package model holds the plain data types shared across the detection
// pipeline. None of these types know how to compute themselves — that
// keeps the scorer and the score shape it produces from importing each
// other.
package model

import "time"

// MarketTier mirrors the three-tier classification used to scale
// liquidity-aware thresholds.
type MarketTier int

const (
	TierOne MarketTier = iota + 1
	TierTwo
	TierThree
)

// MarketCategory buckets markets for category-aware filtering.
type MarketCategory string

const (
	CategoryPolitics  MarketCategory = "politics"
	CategoryCorporate MarketCategory = "corporate"
	CategorySports    MarketCategory = "sports"
	CategoryMisc      MarketCategory = "misc"
)

// Market is the registry's record for a monitored market.
type Market struct {
	ID            string
	ConditionID   string
	Question      string
	Slug          string
	Tier          MarketTier
	Category      MarketCategory
	OpenInterest  float64
	Volume        float64
	Enabled       bool
	Active        bool
	Closed        bool
}

// Analyzable reports whether the detector should consider trades
// against this market at all.
func (m Market) Analyzable() bool {
	return m.Enabled && m.Active && !m.Closed
}

// Side is a trade direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is a single fill on the exchange.
type Trade struct {
	ID          string
	MarketID    string
	Side        Side
	Size        float64
	Price       float64
	Outcome     string
	Maker       string
	Taker       string
	TimestampMS int64
}

// UsdValue is size * price, the notional value of the trade.
func (t Trade) UsdValue() float64 {
	return t.Size * t.Price
}

// TradeSignal is emitted by the detector for trades that pass the gate.
type TradeSignal struct {
	Trade          Trade
	TradeUsdValue  float64
	OiPercentage   float64
	PriceImpact    float64
	OpenInterest   float64
	MarketID       string
}

// DataSource identifies which adapter(s) a NormalizedWallet came from.
type DataSource string

const (
	SourceIndexer  DataSource = "indexer"
	SourcePlatform DataSource = "platform"
	SourceCombined DataSource = "combined"
)

// ConfidenceLevel buckets a confidence score into a human label.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Confidence carries a normalizer's confidence accounting.
type Confidence struct {
	Level   ConfidenceLevel
	Score   int
	Reasons []string
}

// LevelForScore buckets a 0-100 score into the documented bands.
func LevelForScore(score int) ConfidenceLevel {
	switch {
	case score >= 80:
		return ConfidenceHigh
	case score >= 50:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// NormalizedWallet is the common shape both adapters are normalized into.
type NormalizedWallet struct {
	Address              string
	TradeCount           int
	VolumeUSD            float64
	AccountAgeDays        int
	FirstTradeTimestamp  int64
	LastTradeTimestamp   int64
	WinRate              *float64
	Pnl                  *float64
	MarketsTraded        int
	DataSource           DataSource
	Confidence           Confidence
	Warnings             []string
}

// WalletFingerprintFlags are the on-chain-derived booleans. CexFunded
// and HighPolymarketNetflow stay nil: no adapter in the pipeline
// exposes a CEX-funding-source or deposit/withdrawal-netflow signal, so
// there is nothing to derive them from. LowTxCount, YoungWallet and
// SinglePurpose are derived from the merged wallet record.
type WalletFingerprintFlags struct {
	CexFunded             *bool
	LowTxCount            *bool
	YoungWallet           *bool
	HighPolymarketNetflow *bool
	SinglePurpose         *bool
}

// SubgraphFlags are the indexed-data-derived booleans.
type SubgraphFlags struct {
	LowTradeCount      bool
	YoungAccount       bool
	LowVolume          bool
	HighConcentration  bool
	FreshFatBet        bool
	LowDiversification bool
}

// WalletFingerprintMetadata carries supporting numbers for the flags.
type WalletFingerprintMetadata struct {
	TotalTransactions            int
	WalletAgeDays                 int
	CexFundingSource              *string
	PolymarketNetflowPercentage   float64
}

// WalletFingerprint is the per-trade, per-wallet forensic summary.
type WalletFingerprint struct {
	Address       string
	Flags         WalletFingerprintFlags
	SubgraphFlags SubgraphFlags
	Metadata      WalletFingerprintMetadata
	IsSuspicious  bool
	// Confidence is the normalizer's merged 0-100 confidence score
	// (NormalizedWallet.Confidence.Score), carried forward so it can be
	// persisted on the alert and checked against MinConfidenceScore.
	Confidence int
	ComputedAt time.Time
}

// Classification is the named bucket a total score falls into.
type Classification string

const (
	ClassificationLogOnly              Classification = "LOG_ONLY"
	ClassificationAlertMedium          Classification = "ALERT_MEDIUM_CONFIDENCE"
	ClassificationAlertHigh            Classification = "ALERT_HIGH_CONFIDENCE"
	ClassificationAlertStrongInsider   Classification = "ALERT_STRONG_INSIDER"
)

// ScoreBreakdown is the plain record the scorer fills in, kept separate
// from the scorer service itself to avoid a scorer<->model import cycle.
type ScoreBreakdown struct {
	WalletContribution    float64
	ImpactContribution    float64
	ExtremityContribution float64 // always 0 in the v2 model; kept for back-compat
}

// AlertScore is the scorer's output for one (trade, fingerprint) pair.
type AlertScore struct {
	TotalScore     int
	Breakdown      ScoreBreakdown
	Classification Classification
}

// ShouldAlert reports whether the total score clears the configured
// MinWalletScore gate (spec.md §6's MIN_WALLET_SCORE).
func (s AlertScore) ShouldAlert(minWalletScore float64) bool {
	return float64(s.TotalScore) >= minWalletScore
}

// Alert is everything needed to reconstruct a scoring decision, plus
// its lifecycle state.
type Alert struct {
	ID              int64
	TradeID         string
	WalletAddress   string
	MarketID        string
	Trade           Trade
	Signal          TradeSignal
	Fingerprint     WalletFingerprint
	Score           AlertScore
	ConfidenceScore int
	Classification  Classification
	Timestamp       time.Time

	Notified   bool
	NotifiedAt *time.Time
	Dismissed  bool
	DismissedAt *time.Time
	Notes      *string

	// Dormancy fields are no longer used for gating (spec §9 open
	// question); kept nullable and never read by the scorer/detector.
	DormancyDays *int
	DormancyFlag *bool
}
