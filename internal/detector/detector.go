// Package detector implements the trade-level signal gate: the
// market-aware minimum threshold and the impact gate from spec.md
// §4.1. Grounded on the teacher's trade-filtering logic in
// internal/processor.go (category/close-date filtering, notional
// calculation), restructured around the registry + live-liquidity
// lookup the spec requires.
package detector

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/liamashdown/insiderwatch/internal/market"
	"github.com/liamashdown/insiderwatch/internal/model"
	"github.com/liamashdown/insiderwatch/internal/polymarket/gammaapi"
)

// DropReason names why a trade was not turned into a signal.
type DropReason string

const (
	ReasonUnknownMarket      DropReason = "unknown_market"
	ReasonBelowMinimum       DropReason = "filtered_market_aware_minimum"
	ReasonBelowImpact        DropReason = "filtered_impact"
)

// Thresholds are the configured gate parameters from spec.md §6.
type Thresholds struct {
	MinOiPercentage         float64
	MinPriceImpact          float64
	AbsoluteMinUSD          float64
	RelativeLiquidityFactor float64
}

// Detector runs the per-trade gate.
type Detector struct {
	registry   *market.Registry
	gamma      *gammaapi.Client
	thresholds Thresholds
	log        *logrus.Logger
}

// New builds a detector.
func New(registry *market.Registry, gamma *gammaapi.Client, thresholds Thresholds, log *logrus.Logger) *Detector {
	return &Detector{registry: registry, gamma: gamma, thresholds: thresholds, log: log}
}

// Analyze runs the gate for trade. A nil TradeSignal with nil error
// means the trade was silently dropped; check the returned reason for
// why. The returned error is always nil: a failed live-liquidity
// lookup falls back to the stored open interest rather than failing
// the gate.
func (d *Detector) Analyze(ctx context.Context, trade model.Trade) (*model.TradeSignal, DropReason, error) {
	mkt, ok := d.registry.Get(trade.MarketID)
	if !ok || !mkt.Analyzable() {
		return nil, ReasonUnknownMarket, nil
	}

	tradeUsdValue := trade.UsdValue()

	availableLiquidity := d.resolveLiquidity(ctx, mkt)

	minThreshold := d.thresholds.AbsoluteMinUSD
	relative := d.thresholds.RelativeLiquidityFactor * availableLiquidity
	if relative < minThreshold {
		minThreshold = relative
	}

	if tradeUsdValue < minThreshold {
		return nil, ReasonBelowMinimum, nil
	}

	oiPercentage := 0.0
	if mkt.OpenInterest > 0 {
		oiPercentage = 100 * tradeUsdValue / mkt.OpenInterest
	}
	priceImpact := estimatePriceImpact(tradeUsdValue, availableLiquidity)

	if oiPercentage < d.thresholds.MinOiPercentage && priceImpact < d.thresholds.MinPriceImpact {
		return nil, ReasonBelowImpact, nil
	}

	return &model.TradeSignal{
		Trade:         trade,
		TradeUsdValue: tradeUsdValue,
		OiPercentage:  oiPercentage,
		PriceImpact:   priceImpact,
		OpenInterest:  mkt.OpenInterest,
		MarketID:      mkt.ID,
	}, "", nil
}

// resolveLiquidity fetches live liquidity from the Gamma API, falling
// back to the registry's stored open interest if the live lookup
// fails (spec §4.1 step 3).
func (d *Detector) resolveLiquidity(ctx context.Context, mkt model.Market) float64 {
	live, err := d.gamma.GetMarketByConditionID(ctx, mkt.ConditionID)
	if err != nil || live == nil {
		if err != nil {
			d.log.WithError(err).WithField("market_id", mkt.ID).Debug("Live liquidity lookup failed, using stored open interest")
		}
		return mkt.OpenInterest
	}
	if live.LiquidityNum > 0 {
		return live.LiquidityNum
	}
	return mkt.OpenInterest
}

// estimatePriceImpact is the chosen answer to the open question in
// spec.md §9: none of the adapters expose an order book, only
// aggregate liquidity, so impact is estimated as the trade's share of
// twice the available liquidity, capped at 100.
func estimatePriceImpact(tradeUsdValue, availableLiquidity float64) float64 {
	if availableLiquidity <= 0 {
		return 100
	}
	impact := 100 * tradeUsdValue / (2 * availableLiquidity)
	if impact > 100 {
		return 100
	}
	return impact
}

// Error wraps a detector-stage failure so the orchestrator can log it
// with the trade id without special-casing detector errors.
type Error struct {
	TradeID string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("detector failed for trade %s: %v", e.TradeID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
