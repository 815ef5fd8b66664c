// Package cache memoizes expensive portal fetches in memory, every entry carries its own expiry.
package cache

import (
	"context"
	"fmt"
	"strings"
	"stundenplan-backend/internal/components/assert"
	"stundenplan-backend/internal/components/chrono"
	"stundenplan-backend/internal/components/telemetry"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	report_cache_get        = "cache.get"
	report_cache_compute    = "cache.compute"
	report_cache_del_prefix = "cache.del-by-prefix"
)

var meter = otel.Meter("internal/components/cache")
var lookupCounter, _ = meter.Int64Counter("cache_lookups")

// Category is the first segment of a cache key, it decides which ttl an entry gets.
type Category string

const (
	CategoryTimetable     Category = "timetable"
	CategorySubstitutions Category = "substitutions"
	CategoryCancellations Category = "cancellations"
	CategoryWeek          Category = "week"
)

// Prefix returns the key prefix shared by every entry of the category.
func (c Category) Prefix() string {
	return string(c) + ":"
}

// Key builds a namespaced key of the form "<category>:<scope>:<date>".
func Key(category Category, scope, date string) string {
	return fmt.Sprintf("%s:%s:%s", category, scope, date)
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a size bounded key-value store with per entry time-to-live.
type Cache struct {
	store *expirable.LRU[string, entry]
	time  chrono.TimeAPI
	tel   telemetry.API
}

// New creates a cache holding at most `size` entries (0 means unbounded), expiry is evaluated
// against `clock`.
func New(size int, clock chrono.TimeAPI, tel telemetry.API) *Cache {
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "tel")

	return &Cache{
		// expiry is tracked per entry against the injected clock, so the lru's own ttl is off
		store: expirable.NewLRU[string, entry](size, nil, 0),
		time:  clock,
		tel:   telemetry.NewScopedAPI("cache", tel),
	}
}

func (c *Cache) live(key string, e entry) bool {
	if e.expiresAt.IsZero() || c.time.Now().Before(e.expiresAt) {
		return true
	}
	c.store.Remove(key)
	c.tel.ReportDebug("evicted expired entry", key)
	return false
}

// Get returns the value stored under key, expired entries are treated as absent.
func (c *Cache) Get(key string) (any, bool) {
	e, ok := c.store.Get(key)
	if !ok || !c.live(key, e) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl, a ttl <= 0 never expires.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.time.Now().Add(ttl)
	}
	c.store.Add(key, e)
}

func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Del removes key, it reports whether a live entry was removed.
func (c *Cache) Del(key string) bool {
	e, ok := c.store.Peek(key)
	if !ok {
		return false
	}
	c.store.Remove(key)
	return e.expiresAt.IsZero() || c.time.Now().Before(e.expiresAt)
}

// DelByPrefix removes every entry whose key starts with prefix and returns how many were removed.
func (c *Cache) DelByPrefix(prefix string) int {
	removed := 0
	for _, key := range c.store.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if c.store.Remove(key) {
			removed++
		}
	}
	c.tel.ReportDebug(report_cache_del_prefix, prefix, removed)
	return removed
}

// Len counts the stored entries including ones that expired but were not looked up since.
func (c *Cache) Len() int {
	return c.store.Len()
}

// GetOrSet returns the live value under key, or invokes compute once, stores its result for ttl
// and returns it. Errors from compute are returned as is and nothing is stored.
//
// Concurrent callers that miss on the same key may each invoke compute.
func GetOrSet[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	compute func(ctx context.Context) (T, error),
) (T, error) {
	cached, hit := c.Get(key)
	if hit {
		value, ok := cached.(T)
		if ok {
			lookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", true)))
			return value, nil
		}
		c.tel.ReportWarning(
			report_cache_get,
			fmt.Errorf("entry has unexpected type %T", cached),
			key,
		)
	}
	lookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", false)))

	value, err := compute(ctx)
	if err != nil {
		c.tel.ReportDebug(report_cache_compute, key, err)
		var zero T
		return zero, err
	}
	c.Set(key, value, ttl)
	return value, nil
}
