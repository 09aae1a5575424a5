// Package runlog keeps a short per-owner history of import runs in Redis.
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"taskrank/internal/domain"
)

const (
	// KeyPrefix is the Redis key prefix for per-owner run lists.
	KeyPrefix = "taskrank:imports:"

	DefaultHistoryLen = 20
	DefaultTTL        = 30 * 24 * time.Hour
)

type Config struct {
	URL        string
	HistoryLen int
	TTL        time.Duration
}

// Log records import runs, newest first.
type Log struct {
	rdb        *redis.Client
	historyLen int
	ttl        time.Duration
}

// Open connects to the Redis server at cfg.URL and checks it answers.
func Open(ctx context.Context, cfg Config) (*Log, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return New(rdb, cfg), nil
}

// New wraps an existing client.
func New(rdb *redis.Client, cfg Config) *Log {
	if cfg.HistoryLen <= 0 {
		cfg.HistoryLen = DefaultHistoryLen
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Log{rdb: rdb, historyLen: cfg.HistoryLen, ttl: cfg.TTL}
}

func (l *Log) Close() error {
	return l.rdb.Close()
}

func key(ownerID string) string {
	return KeyPrefix + ownerID
}

// Record prepends run to the owner's history and trims it.
func (l *Log) Record(ctx context.Context, run domain.ImportRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal import run: %w", err)
	}
	k := key(run.OwnerID)
	pipe := l.rdb.TxPipeline()
	pipe.LPush(ctx, k, data)
	pipe.LTrim(ctx, k, 0, int64(l.historyLen-1))
	pipe.Expire(ctx, k, l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record import run: %w", err)
	}
	return nil
}

// History returns up to limit runs for the owner, newest first.
func (l *Log) History(ctx context.Context, ownerID string, limit int) ([]domain.ImportRun, error) {
	if limit <= 0 || limit > l.historyLen {
		limit = l.historyLen
	}
	vals, err := l.rdb.LRange(ctx, key(ownerID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read import history: %w", err)
	}
	runs := make([]domain.ImportRun, 0, len(vals))
	for _, v := range vals {
		var run domain.ImportRun
		if err := json.Unmarshal([]byte(v), &run); err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}
