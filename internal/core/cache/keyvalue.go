package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/glowora/cart-core/internal/port"
)

const DefaultSweepInterval = time.Minute

type entry struct {
	data      []byte
	expiresAt time.Time
}

type Stats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Sets         int64 `json:"sets"`
	Deletes      int64 `json:"deletes"`
	Errors       int64 `json:"errors"`
	FallbackSize int   `json:"fallback_size"`
}

// KeyValueCache is a two-tier read-through/write-through cache: a primary
// remote store with an in-process fallback map. Primary failures degrade to
// the fallback with a logged warning and an error counter bump; they are
// never surfaced to callers. A nil primary disables the remote tier.
type KeyValueCache struct {
	primary port.KeyValueStore

	mu       sync.RWMutex
	fallback map[string]entry

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	errors  atomic.Int64

	now func() time.Time
	log *logrus.Entry

	stop     chan struct{}
	stopOnce sync.Once
}

// New builds the cache and starts the fallback-map sweep goroutine. The
// caller owns the lifecycle and must call Close.
func New(primary port.KeyValueStore, sweepInterval time.Duration) *KeyValueCache {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	c := &KeyValueCache{
		primary:  primary,
		fallback: make(map[string]entry),
		now:      time.Now,
		log:      logrus.WithField("component", "kvcache"),
		stop:     make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval)
	return c
}

// Get reads key into dest. The primary tier is tried first; on a primary
// error or miss the fallback map is consulted. A locally expired entry counts
// as absent and is evicted. Returns false when the key is absent in both
// tiers.
func (c *KeyValueCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c.primary != nil {
		data, err := c.primary.Get(ctx, key)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, dest); err != nil {
				return false, fmt.Errorf("decode cached value %q: %w", key, err)
			}
			c.hits.Add(1)
			return true, nil
		case errors.Is(err, port.ErrKeyNotFound):
			// fall through to the local tier
		default:
			c.errors.Add(1)
			c.log.WithError(err).WithField("key", key).Warn("primary cache get failed, using fallback")
		}
	}

	c.mu.RLock()
	e, ok := c.fallback[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return false, nil
	}
	if !e.expiresAt.After(c.now()) {
		c.mu.Lock()
		delete(c.fallback, key)
		c.mu.Unlock()
		c.misses.Add(1)
		return false, nil
	}

	if err := json.Unmarshal(e.data, dest); err != nil {
		return false, fmt.Errorf("decode fallback value %q: %w", key, err)
	}
	c.hits.Add(1)
	return true, nil
}

// Set writes value to the primary store best-effort and always to the
// fallback map with the given TTL.
func (c *KeyValueCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value %q: %w", key, err)
	}

	if c.primary != nil {
		if err := c.primary.Set(ctx, key, data, ttl); err != nil {
			c.errors.Add(1)
			c.log.WithError(err).WithField("key", key).Warn("primary cache set failed, fallback only")
		}
	}

	c.mu.Lock()
	c.fallback[key] = entry{data: data, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()

	c.sets.Add(1)
	return nil
}

// Delete removes key from both tiers. The primary delete is best-effort.
func (c *KeyValueCache) Delete(ctx context.Context, key string) error {
	if c.primary != nil {
		if err := c.primary.Delete(ctx, key); err != nil {
			c.errors.Add(1)
			c.log.WithError(err).WithField("key", key).Warn("primary cache delete failed")
		}
	}

	c.mu.Lock()
	delete(c.fallback, key)
	c.mu.Unlock()

	c.deletes.Add(1)
	return nil
}

// ClearPattern removes every key matching the glob pattern ('*' wildcard)
// from both tiers.
func (c *KeyValueCache) ClearPattern(ctx context.Context, pattern string) error {
	if c.primary != nil {
		keys, err := c.primary.Keys(ctx, pattern)
		if err != nil {
			c.errors.Add(1)
			c.log.WithError(err).WithField("pattern", pattern).Warn("primary cache key scan failed")
		} else if len(keys) > 0 {
			if err := c.primary.Delete(ctx, keys...); err != nil {
				c.errors.Add(1)
				c.log.WithError(err).WithField("pattern", pattern).Warn("primary cache pattern delete failed")
			}
		}
	}

	re, err := globToRegexp(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	c.mu.Lock()
	for k := range c.fallback {
		if re.MatchString(k) {
			delete(c.fallback, k)
			c.deletes.Add(1)
		}
	}
	c.mu.Unlock()

	return nil
}

// Stats returns a point-in-time snapshot of the counters.
func (c *KeyValueCache) Stats() Stats {
	c.mu.RLock()
	size := len(c.fallback)
	c.mu.RUnlock()

	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Sets:         c.sets.Load(),
		Deletes:      c.deletes.Load(),
		Errors:       c.errors.Load(),
		FallbackSize: size,
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (c *KeyValueCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *KeyValueCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *KeyValueCache) sweepExpired() {
	now := c.now()

	c.mu.Lock()
	for k, e := range c.fallback {
		if !e.expiresAt.After(now) {
			delete(c.fallback, k)
		}
	}
	c.mu.Unlock()
}

func globToRegexp(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}
