package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/risk"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultBreakerKey is where the drawdown breaker state lives.
const DefaultBreakerKey = "polymarket:risk:breaker"

// kv is the slice of the go-redis API the state store uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisConfig holds connection parameters for the Redis state store.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	TLSEnabled bool
	Key        string
	Logger     *zap.Logger
}

// RedisStateStore persists drawdown breaker state in Redis so a trip survives restarts and is
// shared by every instance pointed at the same key.
type RedisStateStore struct {
	client kv
	closer func() error
	key    string
	logger *zap.Logger
}

var _ risk.StateStore = (*RedisStateStore)(nil)

// NewRedisStateStore connects and pings Redis.
func NewRedisStateStore(ctx context.Context, cfg *RedisConfig) (*RedisStateStore, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	cfg.Logger.Info("redis-state-store-connected", zap.String("addr", cfg.Addr))
	s := newRedisStateStore(rdb, cfg.Key, cfg.Logger)
	s.closer = rdb.Close
	return s, nil
}

func newRedisStateStore(client kv, key string, logger *zap.Logger) *RedisStateStore {
	if key == "" {
		key = DefaultBreakerKey
	}
	return &RedisStateStore{client: client, key: key, logger: logger}
}

// LoadBreaker returns the saved state, or nil when none was saved.
func (s *RedisStateStore) LoadBreaker(ctx context.Context) (*risk.BreakerState, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var state risk.BreakerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal breaker state: %w", err)
	}
	return &state, nil
}

// SaveBreaker overwrites the saved state. It never expires.
func (s *RedisStateStore) SaveBreaker(ctx context.Context, state *risk.BreakerState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal breaker state: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	s.logger.Debug("breaker-state-saved", zap.String("key", s.key), zap.Bool("tripped", state.Tripped))
	return nil
}

// Close closes the Redis connection.
func (s *RedisStateStore) Close() error {
	if s.closer == nil {
		return nil
	}
	s.logger.Info("closing-redis-state-store")
	return s.closer()
}
