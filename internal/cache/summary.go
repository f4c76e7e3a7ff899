package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/portops/cargoflow/internal/config"
	"github.com/portops/cargoflow/internal/domain"
)

const (
	summaryKeyPrefix  = "cargoflow:summary"
	defaultSummaryTTL = time.Minute
)

// SummaryCache stores the reconciliation summary of the most recent run per
// snapshot date so status endpoints do not recompute it.
type SummaryCache interface {
	GetSummary(ctx context.Context, date time.Time) (*domain.ReconciliationSummary, bool, error)
	SetSummary(ctx context.Context, date time.Time, summary *domain.ReconciliationSummary) error
	Invalidate(ctx context.Context, date time.Time) error
}

type redisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopSummaryCache struct{}

// NewSummaryCache builds a redis-backed cache, or a no-op cache when
// caching is disabled.
func NewSummaryCache(cfg config.CacheConfig) (SummaryCache, error) {
	if !cfg.Enabled {
		return &noopSummaryCache{}, nil
	}

	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := time.Duration(cfg.SummaryTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultSummaryTTL
	}

	return &redisSummaryCache{
		client: client,
		ttl:    ttl,
	}, nil
}

// NewNoopSummaryCache returns a cache that stores nothing.
func NewNoopSummaryCache() SummaryCache {
	return &noopSummaryCache{}
}

func (c *redisSummaryCache) GetSummary(ctx context.Context, date time.Time) (*domain.ReconciliationSummary, bool, error) {
	payload, err := c.client.Get(ctx, summaryKey(date)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var summary domain.ReconciliationSummary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return nil, false, fmt.Errorf("decode summary cache: %w", err)
	}

	return &summary, true, nil
}

func (c *redisSummaryCache) SetSummary(ctx context.Context, date time.Time, summary *domain.ReconciliationSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary cache: %w", err)
	}

	if err := c.client.Set(ctx, summaryKey(date), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

func (c *redisSummaryCache) Invalidate(ctx context.Context, date time.Time) error {
	if err := c.client.Del(ctx, summaryKey(date)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (n *noopSummaryCache) GetSummary(ctx context.Context, date time.Time) (*domain.ReconciliationSummary, bool, error) {
	return nil, false, nil
}

func (n *noopSummaryCache) SetSummary(ctx context.Context, date time.Time, summary *domain.ReconciliationSummary) error {
	return nil
}

func (n *noopSummaryCache) Invalidate(ctx context.Context, date time.Time) error {
	return nil
}

func summaryKey(date time.Time) string {
	return fmt.Sprintf("%s:%s", summaryKeyPrefix, date.Format("20060102"))
}

func buildRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.RedisHost
	if host == "" {
		host = "127.0.0.1"
	}

	port := cfg.RedisPort
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}
