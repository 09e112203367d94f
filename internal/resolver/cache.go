// Package resolver memoizes expensive completion detail resolution in a
// time-bucketed cache.
//
// Time is cut into buckets of width ttl. An entry lives in the bucket it was
// created in and is never refreshed. Whenever the current bucket index is a
// multiple of the sweep interval, every older bucket is dropped in one pass,
// so an entry survives between one and two ttl windows with the default
// interval of two.
package resolver

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/singleflight"
)

var log = commonlog.GetLogger("pylon.resolver")

const (
	DefaultTTL        = 30 * time.Minute
	DefaultSweepEvery = 2
)

// DefaultNamespaces are the top-level packages whose candidates are cached.
// They are large enough that detail resolution is slow and stable enough
// that memoizing it is safe.
var DefaultNamespaces = []string{"pandas", "numpy", "tensorflow", "matplotlib"}

// Func computes the detail for a key. It may block; callers bound it through
// ctx.
type Func func(ctx context.Context, key Key) (string, error)

// Clock returns the current time.
type Clock func() time.Time

// Entry is a cached resolution as exported by Snapshot.
type Entry struct {
	Key    Key
	Bucket int64
	Value  string
}

type Option func(*Cache)

// WithTTL sets the bucket width.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithSweepEvery sets the sweep interval in buckets.
func WithSweepEvery(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.sweepEvery = int64(n)
		}
	}
}

// WithClock replaces time.Now.
func WithClock(clock Clock) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// WithCacheable replaces the cacheability predicate.
func WithCacheable(cacheable func(Key) bool) Option {
	return func(c *Cache) {
		c.cacheable = cacheable
	}
}

// WithNamespaces caches only keys whose top-level namespace is listed.
func WithNamespaces(namespaces ...string) Option {
	return func(c *Cache) {
		c.cacheable = NamespacePredicate(namespaces...)
	}
}

// NamespacePredicate returns a predicate accepting keys whose first dotted
// segment is one of namespaces. Keys without a full name are rejected.
func NamespacePredicate(namespaces ...string) func(Key) bool {
	allowed := make(map[string]struct{}, len(namespaces))
	for _, ns := range namespaces {
		allowed[ns] = struct{}{}
	}
	return func(k Key) bool {
		if k.FullName == "" {
			return false
		}
		_, ok := allowed[k.Namespace()]
		return ok
	}
}

// Cache fronts a Func. It is safe for concurrent use.
type Cache struct {
	resolve    Func
	ttl        time.Duration
	sweepEvery int64
	clock      Clock
	cacheable  func(Key) bool

	mu        sync.Mutex
	buckets   map[int64]map[Key]Result
	lastSweep int64
	floor     int64 // buckets below floor have been swept
	inflight  singleflight.Group
}

// New returns a cache in front of resolve.
func New(resolve Func, opts ...Option) *Cache {
	c := &Cache{
		resolve:    resolve,
		ttl:        DefaultTTL,
		sweepEvery: DefaultSweepEvery,
		clock:      time.Now,
		cacheable:  NamespacePredicate(DefaultNamespaces...),
		buckets:    make(map[int64]map[Key]Result),
		lastSweep:  math.MinInt64,
		floor:      math.MinInt64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bucket returns the index of the current time bucket.
func (c *Cache) Bucket() int64 {
	n := c.clock().UnixNano()
	w := int64(c.ttl)
	b := n / w
	if n%w < 0 {
		b--
	}
	return b
}

// GetOrCreate returns the detail for key, resolving it on a miss.
//
// Uncacheable keys are resolved on every call and never stored. Failures are
// stored like values for the rest of the bucket and reported through the
// Result kind; GetOrCreate itself never fails.
func (c *Cache) GetOrCreate(ctx context.Context, key Key) Result {
	if !c.cacheable(key) {
		return c.call(ctx, key)
	}

	bucket := c.Bucket()

	c.mu.Lock()
	c.sweep(bucket)
	if r, ok := c.lookup(key); ok {
		c.mu.Unlock()
		return r
	}
	c.mu.Unlock()

	// Concurrent misses for the same entry share one resolve call.
	v, _, _ := c.inflight.Do(flightKey(key, bucket), func() (any, error) {
		c.mu.Lock()
		if r, ok := c.buckets[bucket][key]; ok {
			c.mu.Unlock()
			return r, nil
		}
		c.mu.Unlock()

		r := c.call(ctx, key)

		c.mu.Lock()
		defer c.mu.Unlock()
		// A sweep may have passed this bucket while resolving.
		if bucket >= c.floor {
			c.store(bucket, key, r)
		}
		return r, nil
	})
	return v.(Result)
}

func (c *Cache) call(ctx context.Context, key Key) (r Result) {
	defer func() {
		if p := recover(); p != nil {
			r = c.failed(key, fmt.Errorf("panic: %v", p))
		}
	}()

	value, err := c.resolve(ctx, key)
	if err != nil {
		return c.failed(key, err)
	}
	return Result{Value: value, Kind: Resolved}
}

func (c *Cache) failed(key Key, err error) Result {
	log.Warningf("Something went wrong when resolving %s: %v", key, err)
	return Result{Kind: Failed, Err: &ResolutionError{Key: key, Err: err}}
}

// lookup returns the entry for key in any live bucket. Callers hold mu.
func (c *Cache) lookup(key Key) (Result, bool) {
	for _, entries := range c.buckets {
		if r, ok := entries[key]; ok {
			return r, true
		}
	}
	return Result{}, false
}

// store adds an entry. Callers hold mu.
func (c *Cache) store(bucket int64, key Key, r Result) {
	entries, ok := c.buckets[bucket]
	if !ok {
		entries = make(map[Key]Result)
		c.buckets[bucket] = entries
	}
	entries[key] = r
}

// sweep drops every bucket older than current when current is a sweep
// bucket, or when a whole interval passed without one. Callers hold mu.
func (c *Cache) sweep(current int64) {
	due := current%c.sweepEvery == 0 ||
		(c.lastSweep != math.MinInt64 && current-c.lastSweep >= c.sweepEvery)
	if !due || current == c.lastSweep {
		return
	}

	dropped := 0
	for b, entries := range c.buckets {
		if b < current {
			dropped += len(entries)
			delete(c.buckets, b)
		}
	}
	c.lastSweep = current
	c.floor = current
	if dropped > 0 {
		log.Debugf("swept %d cached resolutions older than bucket %d", dropped, current)
	}
}

// Len returns the number of cached entries, failures included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, entries := range c.buckets {
		n += len(entries)
	}
	return n
}

// Snapshot exports the resolved entries. Failures are not exported.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Entry
	for b, entries := range c.buckets {
		for k, r := range entries {
			if r.OK() {
				out = append(out, Entry{Key: k, Bucket: b, Value: r.Value})
			}
		}
	}
	return out
}

// LiveFrom returns the oldest bucket whose entries Restore still accepts.
func (c *Cache) LiveFrom() int64 {
	current := c.Bucket()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweep(current)
	return max(current-1, c.floor)
}

// Restore loads entries exported by Snapshot, typically from a previous
// process. Entries from buckets that are no longer live, or from the
// future, are ignored. It returns the number of entries loaded.
func (c *Cache) Restore(entries []Entry) int {
	from := c.LiveFrom()
	current := c.Bucket()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range entries {
		if e.Bucket < from || e.Bucket > current || !c.cacheable(e.Key) {
			continue
		}
		if _, ok := c.lookup(e.Key); ok {
			continue
		}
		c.store(e.Bucket, e.Key, Result{Value: e.Value, Kind: Resolved})
		n++
	}
	return n
}

func flightKey(k Key, bucket int64) string {
	return strconv.FormatInt(bucket, 10) + "\x00" + k.FullName + "\x00" + k.ModulePath +
		"\x00" + strconv.Itoa(k.Line) + "\x00" + strconv.Itoa(k.Column)
}
