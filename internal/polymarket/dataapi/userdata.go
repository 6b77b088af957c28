package dataapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Position is an open position for a wallet.
type Position struct {
	ConditionID string  `json:"conditionId"`
	Outcome     string  `json:"outcome"`
	Size        float64 `json:"size"`
	AvgPrice    float64 `json:"avgPrice"`
	CurrentUSD  float64 `json:"currentValue"`
}

// ClosedPosition is a resolved/exited position for a wallet.
type ClosedPosition struct {
	ConditionID string  `json:"conditionId"`
	Outcome     string  `json:"outcome"`
	RealizedUSD float64 `json:"realizedPnl"`
	ClosedAt    int64   `json:"closedAt"`
}

// UserData is the fused result of the four per-wallet GETs.
type UserData struct {
	Activity        []ActivityEvent
	RecentTrades    []Trade
	Positions       []Position
	ClosedPositions []ClosedPosition
	QueriedAt       time.Time
}

// GetUserData issues four parallel GETs for address (activity, recent
// trades, open positions, closed positions). A 404 on any one of them
// means "no data" for that facet, not an error; any other failure
// fails the whole call so the caller can fall back to the indexer.
func (c *Client) GetUserData(ctx context.Context, address string) (*UserData, error) {
	br := c.breakerFor()
	if err := br.Allow(ctx); err != nil {
		return nil, err
	}

	type result struct {
		activity        []ActivityEvent
		recentTrades    []Trade
		positions       []Position
		closedPositions []ClosedPosition
		err             error
	}

	var wg sync.WaitGroup
	res := result{}
	var mu sync.Mutex
	setErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if res.err == nil {
			res.err = err
		}
	}

	wg.Add(4)

	go func() {
		defer wg.Done()
		var out []ActivityEvent
		if err := c.getJSON(ctx, "/activity", map[string]string{"user": address}, &out); err != nil {
			setErr(err)
			return
		}
		mu.Lock()
		res.activity = out
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		var out []Trade
		if err := c.getJSON(ctx, "/trades", map[string]string{"user": address, "takerOnly": "true"}, &out); err != nil {
			setErr(err)
			return
		}
		mu.Lock()
		res.recentTrades = out
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		var out []Position
		if err := c.getJSON(ctx, "/positions", map[string]string{"user": address}, &out); err != nil {
			setErr(err)
			return
		}
		mu.Lock()
		res.positions = out
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		var out []ClosedPosition
		if err := c.getJSON(ctx, "/closed-positions", map[string]string{"user": address}, &out); err != nil {
			setErr(err)
			return
		}
		mu.Lock()
		res.closedPositions = out
		mu.Unlock()
	}()

	wg.Wait()

	if res.err != nil {
		br.RecordFailure()
		return nil, res.err
	}

	br.RecordSuccess()
	return &UserData{
		Activity:        res.activity,
		RecentTrades:    res.recentTrades,
		Positions:       res.positions,
		ClosedPositions: res.closedPositions,
		QueriedAt:       time.Now(),
	}, nil
}

// getJSON issues a single rate-limited GET against path with query
// params and decodes the JSON array response into dst. A 404 leaves
// dst untouched (its zero value), matching the "no data" contract.
func (c *Client) getJSON(ctx context.Context, path string, params map[string]string, dst any) error {
	if err := c.activityLimiter.Wait(ctx); err != nil {
		return err
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{status: resp.StatusCode}
	}

	return json.NewDecoder(resp.Body).Decode(dst)
}

// GetRecentTradesForMarkets fetches recent trades across many markets
// at once, batching condition ids (≤20/request) across ≤5 concurrent
// batches, each bounded to a 5s timeout. Results are deduped by
// transaction hash and sorted newest-first.
func (c *Client) GetRecentTradesForMarkets(ctx context.Context, conditionIDs []string, limit int, minUsdValue float64) ([]Trade, error) {
	const batchSize = 20
	const maxConcurrentBatches = 5

	var batches [][]string
	for i := 0; i < len(conditionIDs); i += batchSize {
		end := i + batchSize
		if end > len(conditionIDs) {
			end = len(conditionIDs)
		}
		batches = append(batches, conditionIDs[i:end])
	}

	sem := make(chan struct{}, maxConcurrentBatches)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var all []Trade
	var firstErr error

	for _, batch := range batches {
		batch := batch
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			batchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			params := TradeParams{
				Market:       strings.Join(batch, ","),
				Limit:        limit,
				TakerOnly:    true,
				FilterType:   "CASH",
				FilterAmount: minUsdValue,
			}
			resp, err := c.GetTrades(batchCtx, params)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			all = append(all, resp.Trades...)
		}()
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	seen := make(map[string]struct{}, len(all))
	deduped := all[:0]
	for _, t := range all {
		if _, ok := seen[t.TransactionHash]; ok {
			continue
		}
		seen[t.TransactionHash] = struct{}{}
		deduped = append(deduped, t)
	}

	sort.Slice(deduped, func(i, j int) bool {
		return deduped[i].Timestamp > deduped[j].Timestamp
	})

	return deduped, nil
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return "unexpected status " + strconv.Itoa(e.status)
}
