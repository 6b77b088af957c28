// Package persistence implements the dedup-guarded alert write and
// downstream notification dispatch from spec.md §4.6. Grounded on the
// teacher's sendAlert cooldown-check-then-insert pattern in
// internal/processor.go, generalized to the distributed-lock-first
// protocol the spec requires.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/liamashdown/insiderwatch/internal/alerts"
	"github.com/liamashdown/insiderwatch/internal/metrics"
	"github.com/liamashdown/insiderwatch/internal/model"
	"github.com/liamashdown/insiderwatch/internal/storage"
)

const dedupWindow = 2 * time.Hour
const lockTTL = 30 * time.Second

// Store is the subset of storage.DB the persistence layer needs.
type Store interface {
	FindRecentAlert(ctx context.Context, wallet, marketID string, sinceTS int64) (*storage.AlertRecord, error)
	InsertAlertRecord(ctx context.Context, row *storage.AlertRecord) (int64, error)
}

// Locker is the subset of cache.Cache the dedup protocol needs.
// Defined as an interface (rather than depending on *cache.Cache
// directly) so the dedup-idempotence property can be exercised against
// an in-memory fake instead of a live Redis instance.
type Locker interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

// Service runs the dedup protocol and hands persisted alerts to the
// notification collaborator.
type Service struct {
	store  Store
	cache  Locker
	sender alerts.Sender
	log    *logrus.Logger
}

// New builds a persistence service.
func New(store Store, c Locker, sender alerts.Sender, log *logrus.Logger) *Service {
	return &Service{store: store, cache: c, sender: sender, log: log}
}

// Persist runs the full dedup-guarded write for one (trade, fingerprint,
// score) triple. It returns the row id on a successful insert, or a
// *model.DedupSuppressedError when the alert was suppressed — that is
// not a failure the caller should retry or escalate.
func (s *Service) Persist(ctx context.Context, signal model.TradeSignal, fp model.WalletFingerprint, score model.AlertScore) (int64, error) {
	wallet := signal.Trade.Taker
	marketID := signal.MarketID
	lockKey := fmt.Sprintf("alert:lock:%s:%s", wallet, marketID)
	owner := uuid.NewString()

	acquired, lockErr := s.cache.AcquireLock(ctx, lockKey, owner, lockTTL)
	if lockErr != nil {
		s.log.WithError(lockErr).WithFields(logrus.Fields{"wallet": wallet, "market_id": marketID}).
			Warn("Dedup lock unavailable, proceeding on DB check alone")
	} else if !acquired {
		metrics.AlertsSuppressed.Inc()
		return 0, &model.DedupSuppressedError{WalletAddress: wallet, MarketID: marketID, Reason: "lock held by sibling worker"}
	}
	if lockErr == nil {
		defer func() {
			if err := s.cache.ReleaseLock(context.Background(), lockKey, owner); err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{"wallet": wallet, "market_id": marketID}).
					Warn("Failed to release dedup lock")
			}
		}()
	}

	now := time.Now()
	sinceTS := now.Add(-dedupWindow).Unix()

	existing, err := s.store.FindRecentAlert(ctx, wallet, marketID, sinceTS)
	if err != nil {
		return 0, &model.PersistenceError{Op: "find_recent_alert", Err: err}
	}
	if existing != nil {
		metrics.AlertsSuppressed.Inc()
		return 0, &model.DedupSuppressedError{WalletAddress: wallet, MarketID: marketID, Reason: "existing alert within dedup window"}
	}

	row, err := buildRecord(signal, fp, score, now)
	if err != nil {
		return 0, &model.PersistenceError{Op: "build_record", Err: err}
	}

	id, err := s.store.InsertAlertRecord(ctx, row)
	if err != nil {
		if err == storage.ErrDuplicateTrade {
			metrics.AlertsSuppressed.Inc()
			return 0, &model.DedupSuppressedError{WalletAddress: wallet, MarketID: marketID, Reason: "trade already has an alert"}
		}
		return 0, &model.PersistenceError{Op: "insert_alert", Err: err}
	}

	metrics.AlertsTriggered.WithLabelValues(string(score.Classification)).Inc()

	go s.dispatchNotification(id, wallet, marketID, signal, fp, score)

	return id, nil
}

// dispatchNotification runs in its own goroutine after the insert, so
// Persist and the dedup lock release never wait on it, and it never
// rolls back the DB write on failure (spec §4.6 step 5).
func (s *Service) dispatchNotification(id int64, wallet, marketID string, signal model.TradeSignal, fp model.WalletFingerprint, score model.AlertScore) {
	payload := &alerts.AlertPayload{
		Severity:        severityFor(score.Classification),
		WalletAddress:   wallet,
		MarketURL:       marketID,
		Side:            string(signal.Trade.Side),
		Outcome:         signal.Trade.Outcome,
		NotionalUSD:     signal.TradeUsdValue,
		Price:           signal.Trade.Price,
		WalletAgeDays:   fp.Metadata.WalletAgeDays,
		SuspicionScore:  float64(score.TotalScore),
		TransactionHash: signal.Trade.ID,
		Timestamp:       time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.sender.Send(ctx, payload); err != nil {
		metrics.AlertsSent.WithLabelValues("error", "unknown").Inc()
		notifyErr := &model.NotificationFailureError{Channel: "configured", Err: err}
		s.log.WithError(notifyErr).WithField("alert_id", id).Error("Notification dispatch failed")
		return
	}
	metrics.AlertsSent.WithLabelValues("success", "unknown").Inc()
}

func severityFor(c model.Classification) alerts.Severity {
	switch c {
	case model.ClassificationAlertStrongInsider, model.ClassificationAlertHigh:
		return alerts.SeverityAlert
	case model.ClassificationAlertMedium:
		return alerts.SeverityWarn
	default:
		return alerts.SeverityInfo
	}
}

func buildRecord(signal model.TradeSignal, fp model.WalletFingerprint, score model.AlertScore, now time.Time) (*storage.AlertRecord, error) {
	fingerprintJSON, err := json.Marshal(fp)
	if err != nil {
		return nil, fmt.Errorf("marshal fingerprint: %w", err)
	}

	return &storage.AlertRecord{
		TradeID:            signal.Trade.ID,
		WalletAddress:      signal.Trade.Taker,
		MarketID:           signal.MarketID,
		TimestampTS:        now.Unix(),
		TradeUsdValue:      signal.TradeUsdValue,
		OiPercentage:       signal.OiPercentage,
		PriceImpact:        signal.PriceImpact,
		OpenInterest:       signal.OpenInterest,
		FingerprintJSON:    string(fingerprintJSON),
		WalletContribution: score.Breakdown.WalletContribution,
		ImpactContribution: score.Breakdown.ImpactContribution,
		TotalScore:         score.TotalScore,
		ConfidenceScore:    fp.Confidence,
		Classification:     string(score.Classification),
	}, nil
}
