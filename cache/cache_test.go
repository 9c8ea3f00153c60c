package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"houseprice/ml"
)

func TestKey(t *testing.T) {
	in := ml.Input{HouseType: 1, Location: "Akota", Size: 3, Bath: 2, Balcony: 1, TotalSqft: 1450.5}
	if got := Key("v1", in); got != "v1|1|Akota|3|2|1|1450.5" {
		t.Fatalf("unexpected key %q", got)
	}
	if Key("v1", in) == Key("v2", in) {
		t.Fatalf("keys must differ across bundle versions")
	}
}

func TestLRU(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRU(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = c.Set(ctx, "a", 1)
	_ = c.Set(ctx, "b", 2)
	if _, ok, _ := c.Get(ctx, "a"); !ok {
		t.Fatalf("expected hit for a")
	}
	_ = c.Set(ctx, "c", 3)
	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if price, ok, _ := c.Get(ctx, "c"); !ok || price != 3 {
		t.Fatalf("expected 3, got %v %v", price, ok)
	}
	if err := c.Purge(ctx); err != nil || c.Len() != 0 {
		t.Fatalf("expected empty cache after purge")
	}
}

func TestConnect(t *testing.T) {
	client, err := Connect("redis://localhost:6380/2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()
	if client.Options().Addr != "localhost:6380" || client.Options().DB != 2 {
		t.Fatalf("unexpected options: %+v", client.Options())
	}

	plain, err := Connect("cache:6379")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer plain.Close()
	if plain.Options().Addr != "cache:6379" {
		t.Fatalf("unexpected addr %s", plain.Options().Addr)
	}

	if _, err := Connect("redis://localhost:6379/notanumber"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := Connect(srv.Addr())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := NewRedis(client, time.Minute)
	defer c.Close()
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "v1|0|Akota|2|2|1|1200"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "v1|0|Akota|2|2|1|1200", 5_760_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	price, ok, err := c.Get(ctx, "v1|0|Akota|2|2|1|1200")
	if err != nil || !ok || price != 5_760_000 {
		t.Fatalf("expected hit 5760000, got %v %v %v", price, ok, err)
	}
	if ttl := srv.TTL(redisPrefix + "v1|0|Akota|2|2|1|1200"); ttl != time.Minute {
		t.Fatalf("expected ttl of 1m, got %v", ttl)
	}

	if err := srv.Set(redisPrefix+"corrupt", "not-a-number"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := c.Get(ctx, "corrupt"); err == nil {
		t.Fatalf("expected error for a non-numeric entry")
	}

	for i := 0; i < 1200; i++ {
		if err := c.Set(ctx, fmt.Sprintf("v1|%d", i), float64(i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := srv.Set("other:key", "keep"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Purge(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if keys := srv.Keys(); len(keys) != 1 || keys[0] != "other:key" {
		t.Fatalf("expected only foreign keys to survive purge, got %d keys", len(keys))
	}
}
