package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/liamashdown/insiderwatch/internal/detector"
	"github.com/liamashdown/insiderwatch/internal/forensics"
	"github.com/liamashdown/insiderwatch/internal/market"
	"github.com/liamashdown/insiderwatch/internal/model"
	"github.com/liamashdown/insiderwatch/internal/polymarket/dataapi"
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
		t.Fatalf("unexpected error reloading registry: %v", err)
	}
	return r
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(testDiscard{})
	return l
}

type testDiscard struct{}

func (testDiscard) Write(p []byte) (int, error) { return len(p), nil }

func TestToModelTradeResolvesUnknownConditionID(t *testing.T) {
	o := &Orchestrator{registry: newTestRegistry(t, model.Market{ID: "m1", ConditionID: "c1"})}

	_, ok := o.toModelTrade(dataapi.Trade{ConditionID: "does-not-exist"})
	if ok {
		t.Fatal("expected a trade referencing an unknown condition id to be dropped")
	}
}

func TestToModelTradePrefersUSDCSize(t *testing.T) {
	o := &Orchestrator{registry: newTestRegistry(t, model.Market{ID: "m1", ConditionID: "c1"})}

	raw := dataapi.Trade{
		ConditionID:     "c1",
		Side:            "BUY",
		Size:            10,
		Price:           0.5,
		USDCSize:        20, // disagrees with size*price (=5); usdcSize wins
		Outcome:         "YES",
		ProxyWallet:     "0xabc",
		TransactionHash: "tx1",
		Timestamp:       1700000000,
	}

	trade, ok := o.toModelTrade(raw)
	if !ok {
		t.Fatal("expected trade to resolve against a known market")
	}
	if trade.MarketID != "m1" {
		t.Errorf("expected market id m1, got %s", trade.MarketID)
	}
	if trade.ID != "tx1" {
		t.Errorf("expected trade id tx1, got %s", trade.ID)
	}
	if trade.Taker != "0xabc" {
		t.Errorf("expected taker 0xabc, got %s", trade.Taker)
	}
	if trade.TimestampMS != 1700000000000 {
		t.Errorf("expected timestamp in milliseconds, got %d", trade.TimestampMS)
	}

	// usdcSize(20)/price(0.5) = 40, so UsdValue() should reconstruct to 20.
	if got := trade.UsdValue(); got != 20 {
		t.Errorf("expected usd value 20 after rescaling size to the preferred usdcSize, got %v", got)
	}
}

func TestToModelTradeFallsBackToSizeTimesPriceWhenNoUSDCSize(t *testing.T) {
	o := &Orchestrator{registry: newTestRegistry(t, model.Market{ID: "m1", ConditionID: "c1"})}

	trade, ok := o.toModelTrade(dataapi.Trade{ConditionID: "c1", Size: 10, Price: 2})
	if !ok {
		t.Fatal("expected trade to resolve against a known market")
	}
	if trade.Size != 10 {
		t.Errorf("expected size to pass through unchanged when usdcSize is absent, got %v", trade.Size)
	}
	if trade.UsdValue() != 20 {
		t.Errorf("expected usd value 10*2=20, got %v", trade.UsdValue())
	}
}

func TestAsDedupSuppressedMatchesType(t *testing.T) {
	var target *model.DedupSuppressedError
	err := &model.DedupSuppressedError{WalletAddress: "0xabc", MarketID: "m1", Reason: "locked"}

	if !asDedupSuppressed(err, &target) {
		t.Fatal("expected a *model.DedupSuppressedError to match")
	}
	if target.WalletAddress != "0xabc" {
		t.Errorf("expected target to be populated, got %+v", target)
	}
}

func TestAsDedupSuppressedRejectsOtherErrors(t *testing.T) {
	var target *model.DedupSuppressedError
	err := &model.PersistenceError{Op: "insert"}

	if asDedupSuppressed(err, &target) {
		t.Fatal("expected a non-dedup error to not match")
	}
}

// --- end-to-end fake pipeline ---

type fakeCheckpointer struct {
	mu    sync.Mutex
	state map[string]string
}

func newFakeCheckpointer() *fakeCheckpointer {
	return &fakeCheckpointer{state: make(map[string]string)}
}

func (c *fakeCheckpointer) GetState(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state[key], nil
}

func (c *fakeCheckpointer) SetState(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[key] = value
	return nil
}

type fakeFetcher struct {
	trades []dataapi.Trade
}

func (f fakeFetcher) GetTrades(ctx context.Context, params dataapi.TradeParams) (*dataapi.TradesResponse, error) {
	return &dataapi.TradesResponse{Trades: f.trades}, nil
}

// fixedDetector always passes every trade through with the same signal.
type fixedDetector struct {
	signal *model.TradeSignal
}

func (d fixedDetector) Analyze(ctx context.Context, trade model.Trade) (*model.TradeSignal, detector.DropReason, error) {
	s := *d.signal
	s.Trade = trade
	s.MarketID = trade.MarketID
	return &s, "", nil
}

// droppingDetector never passes anything through the gate.
type droppingDetector struct{ reason detector.DropReason }

func (d droppingDetector) Analyze(ctx context.Context, trade model.Trade) (*model.TradeSignal, detector.DropReason, error) {
	return nil, d.reason, nil
}

// fixedForensics always returns the same fingerprint.
type fixedForensics struct {
	fp model.WalletFingerprint
}

func (f fixedForensics) Analyze(ctx context.Context, address string, tc forensics.TradeContext) (model.WalletFingerprint, error) {
	return f.fp, nil
}

// recordingPersister records every Persist call and suppresses every
// call after the first, mirroring the dedup contract persistence.Service
// itself guarantees (verified independently in persistence_test.go).
type recordingPersister struct {
	mu        sync.Mutex
	calls     []model.TradeSignal
	persisted int
}

func (p *recordingPersister) Persist(ctx context.Context, signal model.TradeSignal, fp model.WalletFingerprint, score model.AlertScore) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, signal)
	if p.persisted >= 1 {
		return 0, &model.DedupSuppressedError{WalletAddress: signal.Trade.Taker, MarketID: signal.MarketID, Reason: "existing alert within dedup window"}
	}
	p.persisted++
	return int64(p.persisted), nil
}

func newSuspiciousFingerprint(confidence int) model.WalletFingerprint {
	return model.WalletFingerprint{
		Address: "0xabc",
		SubgraphFlags: model.SubgraphFlags{
			LowTradeCount:     true,
			YoungAccount:      true,
			HighConcentration: true,
			FreshFatBet:       true,
		},
		IsSuspicious: true,
		Confidence:   confidence,
	}
}

// TestRunOnceStrongInsiderScenario drives one trade through the full
// fake pipeline with a signal and fingerprint strong enough to clear
// both the MinWalletScore and MinConfidenceScore gates, and asserts it
// reaches persistence exactly once.
func TestRunOnceStrongInsiderScenario(t *testing.T) {
	registry := newTestRegistry(t, model.Market{ID: "m1", ConditionID: "c1", Enabled: true, Active: true})
	persister := &recordingPersister{}

	o := New(
		fakeFetcher{trades: []dataapi.Trade{
			{ConditionID: "c1", ProxyWallet: "0xabc", TransactionHash: "tx1", Size: 10000, Price: 1, Timestamp: 1000},
		}},
		registry,
		fixedDetector{signal: &model.TradeSignal{TradeUsdValue: 10000, OiPercentage: 90, PriceImpact: 80, OpenInterest: 50000}},
		fixedForensics{fp: newSuspiciousFingerprint(90)},
		persister,
		newFakeCheckpointer(),
		4,
		5000,
		70,
		75,
		discardLogger(),
	)

	if err := o.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	persister.mu.Lock()
	defer persister.mu.Unlock()
	if len(persister.calls) != 1 {
		t.Fatalf("expected exactly 1 persist call, got %d", len(persister.calls))
	}
	if persister.persisted != 1 {
		t.Fatalf("expected exactly 1 successful persist, got %d", persister.persisted)
	}
}

// TestRunOnceDuplicateBurstScenario drives a burst of trades that all
// resolve to the same wallet/market and all pass the detector gate,
// asserting that every trade reaches the persistence stage (no trade
// is silently skipped by the orchestrator) while the dedup contract
// still lets only the first succeed, and that a suppressed trade never
// stops the rest of the batch or blocks the checkpoint advance.
func TestRunOnceDuplicateBurstScenario(t *testing.T) {
	registry := newTestRegistry(t, model.Market{ID: "m1", ConditionID: "c1", Enabled: true, Active: true})
	persister := &recordingPersister{}

	const burstSize = 5
	trades := make([]dataapi.Trade, burstSize)
	for i := 0; i < burstSize; i++ {
		trades[i] = dataapi.Trade{
			ConditionID:     "c1",
			ProxyWallet:     "0xabc",
			TransactionHash: "tx" + string(rune('a'+i)),
			Size:            10000,
			Price:           1,
			Timestamp:       int64(1000 + i),
		}
	}

	checkpointer := newFakeCheckpointer()
	o := New(
		fakeFetcher{trades: trades},
		registry,
		fixedDetector{signal: &model.TradeSignal{TradeUsdValue: 10000, OiPercentage: 90, PriceImpact: 80, OpenInterest: 50000}},
		fixedForensics{fp: newSuspiciousFingerprint(90)},
		persister,
		checkpointer,
		4,
		5000,
		70,
		75,
		discardLogger(),
	)

	if err := o.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	persister.mu.Lock()
	calls, persisted := len(persister.calls), persister.persisted
	persister.mu.Unlock()

	if calls != burstSize {
		t.Fatalf("expected every trade in the burst to reach persistence (%d), got %d calls", burstSize, calls)
	}
	if persisted != 1 {
		t.Fatalf("expected exactly 1 of %d duplicate submissions to succeed, got %d", burstSize, persisted)
	}

	checkpointVal, _ := checkpointer.GetState(context.Background(), checkpointKey)
	if checkpointVal != "1004" {
		t.Fatalf("expected checkpoint to advance to the max trade timestamp 1004, got %s", checkpointVal)
	}
}

// TestRunOnceDropsTradesBelowTheDetectorGate confirms a trade the
// detector rejects never reaches forensics, scoring, or persistence.
func TestRunOnceDropsTradesBelowTheDetectorGate(t *testing.T) {
	registry := newTestRegistry(t, model.Market{ID: "m1", ConditionID: "c1", Enabled: true, Active: true})
	persister := &recordingPersister{}

	o := New(
		fakeFetcher{trades: []dataapi.Trade{
			{ConditionID: "c1", ProxyWallet: "0xabc", TransactionHash: "tx1", Size: 1, Price: 1, Timestamp: 1000},
		}},
		registry,
		droppingDetector{reason: detector.ReasonBelowMinimum},
		fixedForensics{fp: newSuspiciousFingerprint(90)},
		persister,
		newFakeCheckpointer(),
		4,
		5000,
		70,
		75,
		discardLogger(),
	)

	if err := o.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	persister.mu.Lock()
	defer persister.mu.Unlock()
	if len(persister.calls) != 0 {
		t.Fatalf("expected a gate-dropped trade to never reach persistence, got %d calls", len(persister.calls))
	}
}

// TestRunOnceSuppressesLowConfidenceWallets confirms the
// MinConfidenceScore gate blocks an otherwise-alertable trade whose
// merged wallet confidence falls short.
func TestRunOnceSuppressesLowConfidenceWallets(t *testing.T) {
	registry := newTestRegistry(t, model.Market{ID: "m1", ConditionID: "c1", Enabled: true, Active: true})
	persister := &recordingPersister{}

	o := New(
		fakeFetcher{trades: []dataapi.Trade{
			{ConditionID: "c1", ProxyWallet: "0xabc", TransactionHash: "tx1", Size: 10000, Price: 1, Timestamp: 1000},
		}},
		registry,
		fixedDetector{signal: &model.TradeSignal{TradeUsdValue: 10000, OiPercentage: 90, PriceImpact: 80, OpenInterest: 50000}},
		fixedForensics{fp: newSuspiciousFingerprint(40)}, // below the default MinConfidenceScore of 75
		persister,
		newFakeCheckpointer(),
		4,
		5000,
		70,
		75,
		discardLogger(),
	)

	if err := o.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	persister.mu.Lock()
	defer persister.mu.Unlock()
	if len(persister.calls) != 0 {
		t.Fatalf("expected a low-confidence wallet to never reach persistence, got %d calls", len(persister.calls))
	}
}
