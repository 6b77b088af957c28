// Package market holds the in-memory mapping of monitored market id to
// metadata. It is process-wide shared state: readers never block each
// other, and a reload swaps the whole map atomically so no reader ever
// observes a half-updated registry.
package market

import (
	"context"
	"sync"

	"github.com/liamashdown/insiderwatch/internal/model"
)

// Store is the durable backing store the registry reloads from.
type Store interface {
	ListMarkets(ctx context.Context) ([]model.Market, error)
}

// Registry is the reader-writer protected in-memory market map.
type Registry struct {
	store Store

	mu            sync.RWMutex
	byID          map[string]model.Market
	byConditionID map[string]string // conditionID -> market ID
}

// New creates an empty registry backed by store. Call Reload before
// first use.
func New(store Store) *Registry {
	return &Registry{
		store:         store,
		byID:          make(map[string]model.Market),
		byConditionID: make(map[string]string),
	}
}

// Reload re-reads every market from the durable store and swaps the
// in-memory map atomically.
func (r *Registry) Reload(ctx context.Context) error {
	markets, err := r.store.ListMarkets(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]model.Market, len(markets))
	nextByCondition := make(map[string]string, len(markets))
	for _, m := range markets {
		next[m.ID] = m
		if m.ConditionID != "" {
			nextByCondition[m.ConditionID] = m.ID
		}
	}

	r.mu.Lock()
	r.byID = next
	r.byConditionID = nextByCondition
	r.mu.Unlock()

	return nil
}

// Get returns the market for id and whether it was found.
func (r *Registry) Get(id string) (model.Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	return m, ok
}

// GetByConditionID resolves a market via its on-chain condition id, the
// identifier the Data API's trade stream carries.
func (r *Registry) GetByConditionID(conditionID string) (model.Market, bool) {
	r.mu.RLock()
	id, ok := r.byConditionID[conditionID]
	r.mu.RUnlock()
	if !ok {
		return model.Market{}, false
	}
	return r.Get(id)
}

// Len returns the number of markets currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Snapshot returns a copy of all currently registered markets. Used by
// the retention sweeper and admin surface (both out of core scope)
// without holding the registry lock while they work.
func (r *Registry) Snapshot() []model.Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Market, 0, len(r.byID))
	for _, m := range r.byID {
		out = append(out, m)
	}
	return out
}
