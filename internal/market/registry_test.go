package market

import (
	"context"
	"testing"

	"github.com/liamashdown/insiderwatch/internal/model"
)

type fakeStore struct {
	markets []model.Market
	err     error
}

func (f fakeStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return f.markets, f.err
}

func TestReloadSwapsMapAtomically(t *testing.T) {
	store := fakeStore{markets: []model.Market{
		{ID: "m1", ConditionID: "c1"},
		{ID: "m2", ConditionID: "c2"},
	}}
	r := New(store)

	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Len() != 2 {
		t.Fatalf("expected 2 markets, got %d", r.Len())
	}

	m, ok := r.Get("m1")
	if !ok || m.ConditionID != "c1" {
		t.Fatalf("expected to find m1 with condition c1, got %+v ok=%v", m, ok)
	}

	m2, ok := r.GetByConditionID("c2")
	if !ok || m2.ID != "m2" {
		t.Fatalf("expected condition c2 to resolve to market m2, got %+v ok=%v", m2, ok)
	}
}

func TestReloadReplacesPreviousContents(t *testing.T) {
	r := New(fakeStore{markets: []model.Market{{ID: "m1", ConditionID: "c1"}}})
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.store = fakeStore{markets: []model.Market{{ID: "m2", ConditionID: "c2"}}}
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := r.Get("m1"); ok {
		t.Fatal("expected m1 to be gone after a reload with different contents")
	}
	if _, ok := r.GetByConditionID("c1"); ok {
		t.Fatal("expected condition c1 to be gone after a reload with different contents")
	}
	if _, ok := r.Get("m2"); !ok {
		t.Fatal("expected m2 to be present after reload")
	}
}

func TestGetUnknownMarket(t *testing.T) {
	r := New(fakeStore{})
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected lookup of an unknown market to report not-found")
	}
	if _, ok := r.GetByConditionID("missing"); ok {
		t.Fatal("expected lookup of an unknown condition id to report not-found")
	}
}

func TestSnapshotReturnsCopy(t *testing.T) {
	r := New(fakeStore{markets: []model.Market{{ID: "m1"}, {ID: "m2"}}})
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected snapshot of 2 markets, got %d", len(snap))
	}
}
