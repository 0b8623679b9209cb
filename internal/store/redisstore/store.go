// Package redisstore caches trace API responses in Redis. The cache is
// fail-open everywhere: a miss, a down Redis and a hit all look the same to
// the fetcher except for latency.
package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func New(addr, password string, db int, ttl time.Duration, logger *zap.Logger) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{rdb: rdb, ttl: ttl, logger: logger}
}

func traceKey(assetID string) string {
	return "trace:" + assetID
}

func (s *Store) Get(ctx context.Context, assetID string) ([]byte, bool) {
	b, err := s.rdb.Get(ctx, traceKey(assetID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("trace cache read failed", zap.Error(err))
		}
		return nil, false
	}
	return b, true
}

func (s *Store) Set(ctx context.Context, assetID string, body []byte) {
	if s.ttl <= 0 {
		return
	}
	if err := s.rdb.Set(ctx, traceKey(assetID), body, s.ttl).Err(); err != nil {
		s.logger.Warn("trace cache write failed", zap.Error(err))
	}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
