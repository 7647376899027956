// Package dedupe remembers recently handled integration requests.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DeafMist/docs-radar/backend/internal/models"
)

type entry struct {
	key string
	ts  time.Time
}

// Cache keeps a bounded, expiring set of request keys.
type Cache struct {
	mu       sync.Mutex
	items    map[string]time.Time
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:    make(map[string]time.Time, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// IsSeen reports whether key was marked inside the ttl window.
func (c *Cache) IsSeen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen(key, c.now())
}

// MarkSeen records key as handled.
func (c *Cache) MarkSeen(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mark(key, c.now())
}

// Claim marks key and reports true unless it was already marked inside the
// ttl window. Two concurrent claims of one key never both succeed.
func (c *Cache) Claim(key string) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seen(key, now) {
		return false
	}
	c.mark(key, now)
	return true
}

// Forget drops key so a failed request can be retried.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of live keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) seen(key string, now time.Time) bool {
	ts, ok := c.items[key]
	return ok && now.Sub(ts) <= c.ttl
}

func (c *Cache) mark(key string, now time.Time) {
	c.items[key] = now
	c.order = append(c.order, entry{key: key, ts: now})
	c.compact(now)
}

func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		if ts, ok := c.items[oldest.key]; ok && ts.Equal(oldest.ts) {
			delete(c.items, oldest.key)
		}
	}
}

// RequestKey hashes the normalised request so that requests differing only in
// case, surrounding space or endpoint order share a key.
func RequestKey(req models.IntegrationRequest) string {
	req = req.Normalize()

	endpoints := make([]string, len(req.Endpoints))
	for i, e := range req.Endpoints {
		endpoints[i] = strings.ToLower(e)
	}
	sort.Strings(endpoints)

	h := sha256.New()
	for _, part := range []string{
		strings.ToLower(req.ServiceName),
		req.IntegrationType,
		strings.ToLower(req.Description),
		req.AuthenticationType,
		strings.Join(endpoints, "\n"),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
