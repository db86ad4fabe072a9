package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

type payload struct {
	BestMove string  `json:"best_move"`
	Eval     float64 `json:"eval"`
}

func newTestCache(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	c, err := NewCacheService(CacheConfig{Host: mr.Host(), Port: port, Prefix: "test:"}, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestSetGetRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", payload{BestMove: "e4", Eval: 0.3}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("test:k") {
		t.Fatalf("prefix not applied; keys = %v", mr.Keys())
	}

	var got payload
	found, err := c.Get(ctx, "k", &got)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.BestMove != "e4" || got.Eval != 0.3 {
		t.Fatalf("got %+v", got)
	}
}

func TestMissIsNotAnError(t *testing.T) {
	c, _ := newTestCache(t)
	got := payload{BestMove: "keep"}
	found, err := c.Get(context.Background(), "missing", &got)
	if err != nil || found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if got.BestMove != "keep" {
		t.Fatalf("miss touched dest: %+v", got)
	}
}

func TestTTLExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	if err := c.Set(ctx, "short", payload{BestMove: "d4"}, time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Second)
	var got payload
	if found, _ := c.Get(ctx, "short", &got); found {
		t.Fatalf("expired key still present")
	}
}

func TestDelAndPing(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "a", payload{}, time.Minute)
	_ = c.Set(ctx, "b", payload{}, time.Minute)
	if err := c.Del(ctx, "a", "b"); err != nil {
		t.Fatalf("del: %v", err)
	}
	var got payload
	if found, _ := c.Get(ctx, "a", &got); found {
		t.Fatalf("a survived delete")
	}
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestCorruptValueIsAnError(t *testing.T) {
	c, mr := newTestCache(t)
	if err := mr.Set("test:bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var got payload
	if _, err := c.Get(context.Background(), "bad", &got); err == nil {
		t.Fatalf("corrupt value decoded without error")
	}
}

func TestParseURL(t *testing.T) {
	cfg, err := ParseURL("redis://:secret@cache.local:6380/2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Host != "cache.local" || cfg.Port != 6380 || cfg.Password != "secret" || cfg.DB != 2 || cfg.TLS {
		t.Fatalf("cfg = %+v", cfg)
	}

	cfg, err = ParseURL("rediss://cache.local")
	if err != nil || cfg.Port != 6379 || !cfg.TLS {
		t.Fatalf("rediss cfg = %+v err=%v", cfg, err)
	}

	for _, bad := range []string{"http://cache.local", "redis://cache.local/x", "redis://"} {
		if _, err := ParseURL(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}
