package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/warp/sponsorship-engine/config"
	"github.com/warp/sponsorship-engine/sponsorship"
	"github.com/warp/sponsorship-engine/store/sqlite"
)

// feb5 is the clock used by API tests: after the January test deal ended.
var feb5 = time.Date(2025, 2, 5, 9, 30, 0, 0, time.UTC)

type testServer struct {
	h      *Handler
	router http.Handler
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	opts = append([]Option{WithClock(func() time.Time { return feb5 })}, opts...)
	h := NewHandler(store, nil, nil, opts...)

	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	return &testServer{h: h, router: NewRouter(h, &cfg)}
}

// do sends body (marshaled unless nil) and decodes a JSON response into out.
func (ts *testServer) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (ts *testServer) mustDo(t *testing.T, method, path string, body, out any, want int) {
	t.Helper()
	var raw json.RawMessage
	code := ts.do(t, method, path, body, &raw)
	require.Equal(t, want, code, "%s %s: %s", method, path, string(raw))
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out))
	}
}

// seedSponsor creates sponsor-1 at silver tier.
func (ts *testServer) seedSponsor(t *testing.T) {
	t.Helper()
	ts.mustDo(t, http.MethodPost, "/api/sponsors", CreateSponsorRequest{
		ID:        "sponsor-1",
		Name:      "Acme Audio",
		Tier:      "silver",
		Budget:    mustDecimal("10000"),
		Platforms: []string{"youtube"},
	}, nil, http.StatusCreated)
}

// januaryDealRequest is a January 2025 deal with four rules:
//
//	flat:     fixed 500
//	clicks:   0.5 per click, capped at 300
//	views-ms: 1000 views -> 100, 5000 views -> 250
//	rev:      10% revenue share (no revenue recorded -> not applicable)
func januaryDealRequest(id string) map[string]any {
	return map[string]any{
		"id":           id,
		"sponsor_id":   "sponsor-1",
		"creator_id":   "creator-1",
		"title":        "January push",
		"base_fee":     "2000",
		"period_start": "2025-01-01",
		"period_end":   "2025-01-31",
		"kpi_targets":  map[string]string{"views": "5000", "clicks": "1000"},
		"rules": []map[string]any{
			{"id": "flat", "bonus_type": "fixed", "base_amount": "500"},
			{"id": "clicks", "bonus_type": "performance", "metric_type": "clicks", "rate": "0.5", "cap": "300"},
			{"id": "views-ms", "bonus_type": "milestone", "metric_type": "views", "milestones": []map[string]string{
				{"target": "1000", "bonus": "100"},
				{"target": "5000", "bonus": "250"},
			}},
			{"id": "rev", "bonus_type": "revenue_share", "percentage": "10"},
		},
	}
}

// seedJanuaryDeal creates the January deal with 6000 views and 800 clicks.
// Payable bonuses: flat 500 + clicks 300 (capped) + milestones 350 = 1150.
func (ts *testServer) seedJanuaryDeal(t *testing.T, id, status string) {
	t.Helper()
	req := januaryDealRequest(id)
	req["status"] = status
	ts.mustDo(t, http.MethodPost, "/api/deals", req, nil, http.StatusCreated)
	ts.mustDo(t, http.MethodPost, "/api/deals/"+id+"/metrics", RecordMetricsRequest{Metrics: []MetricInput{
		{Type: "views", Value: mustDecimal("4000"), MeasuredAt: time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC), Platform: "youtube"},
		{Type: "views", Value: mustDecimal("2000"), MeasuredAt: time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC), Platform: "tiktok"},
		{Type: "clicks", Value: mustDecimal("800"), MeasuredAt: time.Date(2025, 1, 11, 12, 0, 0, 0, time.UTC)},
	}}, nil, http.StatusCreated)
}

// mapCache is an in-process SummaryCache.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]sponsorship.CampaignSummary
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]sponsorship.CampaignSummary)}
}

func (c *mapCache) key(dealID sponsorship.DealID, p sponsorship.Period) string {
	return string(dealID) + "|" + p.String()
}

func (c *mapCache) Get(_ context.Context, dealID sponsorship.DealID, p sponsorship.Period) (*sponsorship.CampaignSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[c.key(dealID, p)]
	if !ok {
		return nil, false
	}
	return &s, true
}

func (c *mapCache) Set(_ context.Context, s sponsorship.CampaignSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(s.DealID, s.Period)] = s
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, dealID sponsorship.DealID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, s := range c.entries {
		if s.DealID == dealID {
			delete(c.entries, k)
		}
	}
	return nil
}
