package topology

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher retrieves a fresh topology from the booking API.
type Fetcher interface {
	FetchTopology(ctx context.Context) (Topology, error)
}

// Cache is a TTL cache over the fetched topology. Refreshes are single-flight:
// concurrent callers that miss share one fetch. A refresh failure with prior
// data falls back to the stale copy instead of failing the caller.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	mirror  *Mirror // optional on-disk acceleration
	log     *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	data      Topology
	fetchedAt time.Time
}

func NewCache(fetcher Fetcher, ttl time.Duration, mirror *Mirror, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		mirror:  mirror,
		log:     log.With("component", "topology-cache"),
		now:     time.Now,
	}
}

// Get returns the current topology. With forceRefresh false, a fresh mirror
// file or a non-expired in-memory copy is returned without touching the API.
func (c *Cache) Get(ctx context.Context, forceRefresh bool) (Topology, error) {
	if !forceRefresh {
		if c.mirror != nil {
			if t, err := c.mirror.Load(); err == nil {
				c.log.Debug("using topology from mirror", "rooms", len(t))
				return t, nil
			}
		}
		c.mu.Lock()
		if c.validLocked() {
			t := c.data
			c.mu.Unlock()
			c.log.Debug("using cached topology", "rooms", len(t))
			return t, nil
		}
		c.mu.Unlock()
	}

	v, err, _ := c.group.Do("topology", func() (any, error) {
		// Replay the decision: an earlier flight may have refreshed already.
		c.mu.Lock()
		if !forceRefresh && c.validLocked() {
			t := c.data
			c.mu.Unlock()
			return t, nil
		}
		c.mu.Unlock()

		fresh, ferr := c.fetcher.FetchTopology(ctx)
		if ferr != nil {
			c.mu.Lock()
			stale := c.data
			c.mu.Unlock()
			if stale != nil {
				c.log.Warn("topology refresh failed, serving stale cache", "error", ferr)
				return stale, nil
			}
			return nil, ferr
		}

		c.mu.Lock()
		c.data = fresh
		c.fetchedAt = c.now()
		c.mu.Unlock()
		c.log.Info("topology refreshed", "rooms", len(fresh))

		if c.mirror != nil {
			if werr := c.mirror.Write(fresh); werr != nil {
				c.log.Warn("mirror write failed", "error", werr)
			}
		}
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Topology), nil
}

// Clear drops the in-memory copy. The mirror file is left alone.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
	c.fetchedAt = time.Time{}
}

func (c *Cache) validLocked() bool {
	return c.data != nil && c.now().Sub(c.fetchedAt) < c.ttl
}
