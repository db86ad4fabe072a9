package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type CacheConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TLS      bool
	// Prefix is prepended to every key.
	Prefix string
}

// CacheService is a JSON value cache over Redis.
type CacheService struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

func NewCacheService(cfg CacheConfig, logger *zap.Logger) (*CacheService, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("redis host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 6379
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}
	return &CacheService{rdb: redis.NewClient(opts), prefix: cfg.Prefix, logger: logger}, nil
}

// ParseURL reads redis://[:password@]host[:port][/db] into a CacheConfig.
func ParseURL(raw string) (CacheConfig, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return CacheConfig{}, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return CacheConfig{}, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	cfg := CacheConfig{Host: u.Hostname(), Port: 6379, TLS: u.Scheme == "rediss"}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return CacheConfig{}, fmt.Errorf("redis port: %w", err)
		}
		cfg.Port = port
	}
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		db, err := strconv.Atoi(p)
		if err != nil {
			return CacheConfig{}, fmt.Errorf("redis db: %w", err)
		}
		cfg.DB = db
	}
	if u.User != nil {
		cfg.Password, _ = u.User.Password()
	}
	if cfg.Host == "" {
		return CacheConfig{}, fmt.Errorf("redis url has no host")
	}
	return cfg, nil
}

func (c *CacheService) key(k string) string { return c.prefix + k }

// Get decodes the value at key into dest. A missing key reports false and a
// nil error, leaving dest untouched.
func (c *CacheService) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, c.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *CacheService) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.rdb.Del(ctx, full...).Err()
}

func (c *CacheService) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *CacheService) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.logger.Warn("redis_close_failed", zap.Error(err))
		return err
	}
	return nil
}
