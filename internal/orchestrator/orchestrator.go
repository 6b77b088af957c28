// Package orchestrator drives the end-to-end per-trade pipeline:
// detector -> forensics -> scorer -> persistence. Grounded on the
// teacher's ProcessTrades loop in internal/processor.go (checkpointed
// fetch, bounded worker pool, per-trade error isolation), restructured
// around the four-stage detection pipeline spec.md §5 describes.
package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liamashdown/insiderwatch/internal/detector"
	"github.com/liamashdown/insiderwatch/internal/forensics"
	"github.com/liamashdown/insiderwatch/internal/market"
	"github.com/liamashdown/insiderwatch/internal/metrics"
	"github.com/liamashdown/insiderwatch/internal/model"
	"github.com/liamashdown/insiderwatch/internal/polymarket/dataapi"
	"github.com/liamashdown/insiderwatch/internal/scorer"
)

// Checkpointer is the subset of storage.DB the orchestrator needs to
// remember how far it has processed the trade stream.
type Checkpointer interface {
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error
}

// TradeFetcher is the subset of dataapi.Client the orchestrator needs
// to pull the next batch of trades.
type TradeFetcher interface {
	GetTrades(ctx context.Context, params dataapi.TradeParams) (*dataapi.TradesResponse, error)
}

// Detector is the subset of detector.Detector the pipeline drives.
type Detector interface {
	Analyze(ctx context.Context, trade model.Trade) (*model.TradeSignal, detector.DropReason, error)
}

// Forensics is the subset of forensics.Service the pipeline drives.
type Forensics interface {
	Analyze(ctx context.Context, address string, tc forensics.TradeContext) (model.WalletFingerprint, error)
}

// Persister is the subset of persistence.Service the pipeline drives.
type Persister interface {
	Persist(ctx context.Context, signal model.TradeSignal, fp model.WalletFingerprint, score model.AlertScore) (int64, error)
}

const checkpointKey = "last_processed_ts"

// Orchestrator wires the four detection stages together and runs them
// over a bounded worker pool: one goroutine per fetched trade, with at
// most workerPoolSize of them running the pipeline at once. Each
// collaborator is held as an interface (rather than a concrete type)
// so the pipeline can be driven end to end against fakes in tests.
type Orchestrator struct {
	cfgMinTradeUSD     float64
	minWalletScore     float64
	minConfidenceScore float64
	dataClient         TradeFetcher
	registry           *market.Registry
	detector           Detector
	forensics          Forensics
	persistence        Persister
	store              Checkpointer
	workerPool         chan struct{}
	log                *logrus.Logger
}

// New builds an Orchestrator. minTradeUSD is the floor applied to the
// Data API trade-stream query itself (spec.md §4.1's market-aware
// minimum narrows further, per-market, downstream in the detector).
// minWalletScore and minConfidenceScore are spec.md §6's MIN_WALLET_SCORE
// and MIN_CONFIDENCE_SCORE gates applied after scoring.
func New(
	dataClient TradeFetcher,
	registry *market.Registry,
	det Detector,
	forensicsSvc Forensics,
	persistenceSvc Persister,
	store Checkpointer,
	workerPoolSize int,
	minTradeUSD float64,
	minWalletScore float64,
	minConfidenceScore float64,
	log *logrus.Logger,
) *Orchestrator {
	if workerPoolSize <= 0 {
		workerPoolSize = 8
	}
	pool := make(chan struct{}, workerPoolSize)
	for i := 0; i < workerPoolSize; i++ {
		pool <- struct{}{}
	}

	return &Orchestrator{
		cfgMinTradeUSD:     minTradeUSD,
		minWalletScore:     minWalletScore,
		minConfidenceScore: minConfidenceScore,
		dataClient:         dataClient,
		registry:           registry,
		detector:           det,
		forensics:          forensicsSvc,
		persistence:        persistenceSvc,
		store:              store,
		workerPool:         pool,
		log:                log,
	}
}

// RunOnce fetches every trade since the last checkpoint and runs the
// pipeline over each one, bounded by the worker pool. Per-trade
// failures are logged and counted, never propagated — one bad trade
// must not stop the batch.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	lastProcessedStr, err := o.store.GetState(ctx, checkpointKey)
	if err != nil {
		return fmt.Errorf("get checkpoint: %w", err)
	}
	var lastProcessedTS int64
	if lastProcessedStr != "" {
		lastProcessedTS, _ = strconv.ParseInt(lastProcessedStr, 10, 64)
	}

	resp, err := o.dataClient.GetTrades(ctx, dataapi.TradeParams{
		Limit:         10000,
		TakerOnly:     true,
		FilterType:    "CASH",
		FilterAmount:  o.cfgMinTradeUSD,
		SortBy:        "timestamp",
		SortDirection: "DESC",
	})
	if err != nil {
		return fmt.Errorf("fetch trades: %w", err)
	}

	o.log.WithFields(logrus.Fields{
		"count":             len(resp.Trades),
		"last_processed_ts": lastProcessedTS,
	}).Info("Fetched trades for pipeline run")

	var wg sync.WaitGroup
	var maxTS int64 = lastProcessedTS

	for _, raw := range resp.Trades {
		if raw.Timestamp <= lastProcessedTS {
			continue
		}
		if raw.Timestamp > maxTS {
			maxTS = raw.Timestamp
		}

		wg.Add(1)
		go func(t dataapi.Trade) {
			defer wg.Done()

			<-o.workerPool
			defer func() { o.workerPool <- struct{}{} }()

			o.runPipeline(ctx, t)
		}(raw)
	}

	wg.Wait()

	if maxTS > lastProcessedTS {
		if err := o.store.SetState(ctx, checkpointKey, strconv.FormatInt(maxTS, 10)); err != nil {
			o.log.WithError(err).Error("Failed to update checkpoint")
		}
	}

	return nil
}

// runPipeline carries one trade through detect -> forensics -> score ->
// persist. Every stage's error is isolated here: a failure in one
// trade's forensics lookup cannot affect any other trade in flight.
func (o *Orchestrator) runPipeline(ctx context.Context, raw dataapi.Trade) {
	start := time.Now()
	trade, ok := o.toModelTrade(raw)
	if !ok {
		metrics.TradesProcessed.WithLabelValues("unknown_market").Inc()
		return
	}

	signal, reason, err := o.detector.Analyze(ctx, trade)
	if err != nil {
		o.log.WithError(err).WithField("trade_id", trade.ID).Error("Detector stage failed")
		metrics.TradesProcessed.WithLabelValues("detector_error").Inc()
		return
	}
	if signal == nil {
		metrics.TradesProcessed.WithLabelValues(string(reason)).Inc()
		return
	}

	fp, err := o.forensics.Analyze(ctx, trade.Taker, forensics.TradeContext{
		TradeSizeUSD: signal.TradeUsdValue,
		MarketOI:     signal.OpenInterest,
	})
	if err != nil {
		o.log.WithError(err).WithField("trade_id", trade.ID).Error("Forensics stage failed")
		metrics.TradesProcessed.WithLabelValues("forensics_error").Inc()
		return
	}

	score := scorer.Score(*signal, fp)

	if float64(fp.Confidence) < o.minConfidenceScore {
		metrics.RecordTradeProcessing(time.Since(start), "low_confidence")
		return
	}

	if !score.ShouldAlert(o.minWalletScore) {
		metrics.RecordTradeProcessing(time.Since(start), "scored_no_alert")
		return
	}

	if _, err := o.persistence.Persist(ctx, *signal, fp, score); err != nil {
		var suppressed *model.DedupSuppressedError
		if asDedupSuppressed(err, &suppressed) {
			metrics.RecordTradeProcessing(time.Since(start), "suppressed")
			return
		}
		o.log.WithError(err).WithField("trade_id", trade.ID).Error("Persistence stage failed")
		metrics.TradesProcessed.WithLabelValues("persistence_error").Inc()
		return
	}

	metrics.RecordTradeProcessing(time.Since(start), "alerted")
}

func asDedupSuppressed(err error, target **model.DedupSuppressedError) bool {
	if d, ok := err.(*model.DedupSuppressedError); ok {
		*target = d
		return true
	}
	return false
}

// toModelTrade resolves a Data API trade into the pipeline's own Trade
// type, looking the market up by condition id since that is the only
// market identifier the trade stream itself carries.
func (o *Orchestrator) toModelTrade(raw dataapi.Trade) (model.Trade, bool) {
	mkt, ok := o.registry.GetByConditionID(raw.ConditionID)
	if !ok {
		return model.Trade{}, false
	}

	// model.Trade.UsdValue() is Size*Price; when the API's preferred
	// usdcSize disagrees with size*price we keep their ratio consistent
	// by scaling size, the same "prefer usdcSize" rule the teacher
	// applies in calculateNotional.
	size := raw.Size
	if raw.USDCSize > 0 && raw.Price > 0 {
		size = raw.USDCSize / raw.Price
	}

	return model.Trade{
		ID:          raw.TransactionHash,
		MarketID:    mkt.ID,
		Side:        model.Side(raw.Side),
		Size:        size,
		Price:       raw.Price,
		Outcome:     raw.Outcome,
		Taker:       raw.ProxyWallet,
		TimestampMS: raw.Timestamp * 1000,
	}, true
}
