package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is an in-process prediction cache.
type LRU struct {
	entries *lru.Cache[string, float64]
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		size = 1024
	}
	entries, err := lru.New[string, float64](size)
	if err != nil {
		return nil, err
	}
	return &LRU{entries: entries}, nil
}

func (c *LRU) Get(_ context.Context, key string) (float64, bool, error) {
	price, ok := c.entries.Get(key)
	return price, ok, nil
}

func (c *LRU) Set(_ context.Context, key string, price float64) error {
	c.entries.Add(key, price)
	return nil
}

func (c *LRU) Purge(context.Context) error {
	c.entries.Purge()
	return nil
}

func (c *LRU) Len() int {
	return c.entries.Len()
}
