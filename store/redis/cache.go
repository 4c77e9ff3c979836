/*
Package redis provides a Redis-backed sponsorship.SummaryCache.

PURPOSE:
  Campaign summaries are fully derived from a deal's metrics and payouts,
  so they can be cached and thrown away at any time. Entries are stored
  as JSON under one key per (deal, period).

KEYS:
  <prefix>summary:<deal_id>:<start>:<end>   e.g. sponsorship:summary:deal-1:2025-01-01:2025-01-31

INVALIDATION:
  Entries expire after TTL. Writes touching a deal call Invalidate, which
  SCANs the deal's key space and deletes every period for that deal. The
  SCAN pattern escapes glob characters in the deal ID and pins both dates
  to their fixed width, so deal "a" never matches the keys of deal "a:b".

FAILURE MODE:
  A Redis outage degrades to a cache miss: Get logs the error, reports
  false, and the summary is regenerated from the store.

SEE ALSO:
  - sponsorship/store.go: SummaryCache interface
  - api/handlers.go: GetSummary uses the cache
*/
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
	"github.com/warp/sponsorship-engine/sponsorship"
	"go.uber.org/zap"
)

const DefaultPrefix = "sponsorship:"

// SummaryCache implements sponsorship.SummaryCache on Redis.
type SummaryCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

var _ sponsorship.SummaryCache = (*SummaryCache)(nil)

type Option func(*SummaryCache)

// WithLogger sets the logger used to report degraded reads.
func WithLogger(logger *zap.Logger) Option {
	return func(c *SummaryCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewSummaryCache wraps an existing client. The caller owns the client.
func NewSummaryCache(client goredis.UniversalClient, ttl time.Duration, opts ...Option) *SummaryCache {
	c := &SummaryCache{client: client, ttl: ttl, prefix: DefaultPrefix, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials Redis and verifies it answers before returning.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Key returns the cache key for a deal summary over period.
func (c *SummaryCache) Key(dealID sponsorship.DealID, period sponsorship.Period) string {
	return fmt.Sprintf("%ssummary:%s:%s:%s", c.prefix, dealID,
		period.Start.Format("2006-01-02"), period.End.Format("2006-01-02"))
}

// InvalidatePattern is the SCAN pattern matching every period of dealID.
func (c *SummaryCache) InvalidatePattern(dealID sponsorship.DealID) string {
	return fmt.Sprintf("%ssummary:%s:%s:%s", globEscaper.Replace(c.prefix), globEscaper.Replace(string(dealID)),
		datePattern, datePattern)
}

// datePattern matches exactly one YYYY-MM-DD date.
const datePattern = "????-??-??"

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (c *SummaryCache) Get(ctx context.Context, dealID sponsorship.DealID, period sponsorship.Period) (*sponsorship.CampaignSummary, bool) {
	key := c.Key(dealID, period)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Warn("summary cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var summary sponsorship.CampaignSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		c.logger.Warn("summary cache entry undecodable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &summary, true
}

func (c *SummaryCache) Set(ctx context.Context, summary sponsorship.CampaignSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return c.client.Set(ctx, c.Key(summary.DealID, summary.Period), raw, c.ttl).Err()
}

// Invalidate removes every cached period for dealID.
func (c *SummaryCache) Invalidate(ctx context.Context, dealID sponsorship.DealID) error {
	iter := c.client.Scan(ctx, 0, c.InvalidatePattern(dealID), 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan summary keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
