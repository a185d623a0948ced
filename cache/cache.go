/*
Copyright 2024 The Flux authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cache

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

const (
	// noExpiration is a sentinel value used to indicate no expiration time.
	// It is used instead of 0, to be able to sort items by expiration time ascending.
	noExpiration = time.Second * 86400 * 365 * 10 // 10 years
	// defaultInterval is the default interval for the janitor to run.
	defaultInterval = time.Minute
)

// Cache[T] is a thread-safe in-memory key/object store with a bounded number
// of items. Every item carries its own expiration time, which is fixed when
// the item is written and never extended by reads.
// Use the New function to create a new cache that is ready to use.
type Cache[T any] struct {
	*cache[T]
}

// item is an item stored in the cache.
type item[T any] struct {
	key string
	// value is the item's value.
	value T
	// expiresAt is the item's expiration time.
	expiresAt time.Time
}

type cache[T any] struct {
	// index holds the cache index.
	index map[string]*item[T]
	// items is the store of elements in the cache.
	items []*item[T]

	// capacity is the maximum number of items the cache can hold.
	capacity int
	// ttl is applied by Set.
	ttl     time.Duration
	clock   clock.PassiveClock
	metrics *metrics
	janitor *janitor[T]
	// sorted indicates whether the items are sorted by expiration time.
	// It is initially true, and set to false when the items are not sorted.
	sorted bool
	closed bool

	mu sync.RWMutex
}

var _ Expirable[any] = &Cache[any]{}

// New creates a new cache with the given configuration.
func New[T any](capacity int, opts ...Options) (*Cache[T], error) {
	if capacity <= 0 {
		return nil, invalidSize(capacity)
	}

	opt, err := makeOptions(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to apply options: %w", err)
	}

	c := &cache[T]{
		index:    make(map[string]*item[T]),
		items:    make([]*item[T], 0),
		sorted:   true,
		capacity: capacity,
		ttl:      opt.ttl,
		clock:    opt.clock,
		janitor: &janitor[T]{
			interval: opt.interval,
			stop:     make(chan struct{}),
		},
	}

	if opt.registerer != nil {
		c.metrics = newMetrics(opt.metricsPrefix, opt.registerer)
	}

	go c.janitor.run(c)

	return &Cache[T]{cache: c}, nil
}

func makeOptions(opts ...Options) (*storeOptions, error) {
	opt := storeOptions{}
	for _, o := range opts {
		err := o(&opt)
		if err != nil {
			return nil, err
		}
	}
	if opt.interval <= 0 {
		opt.interval = defaultInterval
	}
	if opt.ttl <= 0 {
		opt.ttl = noExpiration
	}
	if opt.clock == nil {
		opt.clock = clock.RealClock{}
	}
	return &opt, nil
}

// Close closes the cache. It also stops the expiration eviction process.
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	close(c.janitor.stop)
	c.closed = true
	return nil
}

// Set an item in the cache with the cache TTL. Existing items are
// overwritten and their expiration restarted.
// If the cache is full, the item closest to its expiration is evicted.
func (c *Cache[T]) Set(key string, value T) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.metrics.request(StatusFailure)
		return ErrCacheClosed
	}
	c.set(key, value, c.clock.Now().Add(c.ttl), true)
	c.mu.Unlock()
	c.metrics.request(StatusSuccess)
	return nil
}

// SetWithExpiration sets an item in the cache that expires at the given time.
// If the key already holds an item that has not expired, only the value is
// replaced: the expiration time stays the one set when the item was created.
func (c *Cache[T]) SetWithExpiration(key string, value T, expiresAt time.Time) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.metrics.request(StatusFailure)
		return ErrCacheClosed
	}
	c.set(key, value, expiresAt, false)
	c.mu.Unlock()
	c.metrics.request(StatusSuccess)
	return nil
}

// set must be called with the write lock held.
func (c *cache[T]) set(key string, value T, expiresAt time.Time, resetExpiration bool) {
	if it, found := c.index[key]; found {
		if !c.expired(it) {
			// item already exists, update it only
			it.value = value
			if resetExpiration {
				it.expiresAt = expiresAt
				c.sorted = false
			}
			return
		}
		it.value = value
		it.expiresAt = expiresAt
		c.sorted = false
		return
	}

	if len(c.index) >= c.capacity {
		c.evict()
	}

	it := &item[T]{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	}
	if n := len(c.items); n > 0 && c.items[n-1].expiresAt.After(expiresAt) {
		c.sorted = false
	}
	c.index[key] = it
	c.items = append(c.items, it)
	c.metrics.added()
}

// evict makes room for one item. Expired items are dropped first, then
// the item closest to its expiration.
func (c *cache[T]) evict() {
	c.sortItems()
	if n := c.removeExpired(); n > 0 {
		return
	}
	if len(c.items) == 0 {
		return
	}
	v := c.items[0]
	delete(c.index, v.key)
	c.items = c.items[1:]
	c.metrics.evicted(EvictionReasonCapacity, 1)
}

// Get an item from the cache. Returns a copy of the value, or nil if the key
// is not present or the item has expired.
func (c *Cache[T]) Get(key string) (*T, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		c.metrics.request(StatusFailure)
		return nil, ErrCacheClosed
	}
	it, found := c.index[key]
	if !found || c.expired(it) {
		c.mu.RUnlock()
		c.metrics.lookup(false)
		return nil, nil
	}
	value := it.value
	c.mu.RUnlock()
	c.metrics.lookup(true)
	return &value, nil
}

// GetWithExpiration returns a copy of the value along with its expiration
// time. It returns nil and a zero time if the key is not present or the item
// has expired.
func (c *Cache[T]) GetWithExpiration(key string) (*T, time.Time, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		c.metrics.request(StatusFailure)
		return nil, time.Time{}, ErrCacheClosed
	}
	it, found := c.index[key]
	if !found || c.expired(it) {
		c.mu.RUnlock()
		c.metrics.lookup(false)
		return nil, time.Time{}, nil
	}
	value, expiresAt := it.value, it.expiresAt
	c.mu.RUnlock()
	c.metrics.lookup(true)
	return &value, expiresAt, nil
}

func (c *cache[T]) expired(it *item[T]) bool {
	return !it.expiresAt.After(c.clock.Now())
}

// Clear all items from the cache.
// This reallocates the underlying array holding the items,
// so that the memory used by the items is reclaimed.
// A closed cache cannot be cleared.
func (c *cache[T]) Clear() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.index = make(map[string]*item[T])
	c.items = make([]*item[T], 0)
	c.sorted = true
	c.mu.Unlock()
	c.metrics.cleared()
}

// ListKeys returns a slice of the keys in the cache, including items that
// have expired but have not been removed yet.
func (c *cache[T]) ListKeys() ([]string, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		c.metrics.request(StatusFailure)
		return nil, ErrCacheClosed
	}
	keys := make([]string, 0, len(c.index))
	for k := range c.index {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	c.metrics.request(StatusSuccess)
	return keys, nil
}

// Len returns the number of items held by the cache.
func (c *cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index)
}

// HasExpired returns true if the item has expired or is not in the cache.
func (c *Cache[T]) HasExpired(key string) (bool, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		c.metrics.request(StatusFailure)
		return false, ErrCacheClosed
	}
	it, ok := c.index[key]
	if !ok {
		c.mu.RUnlock()
		c.metrics.request(StatusSuccess)
		return true, nil
	}
	expired := c.expired(it)
	c.mu.RUnlock()
	c.metrics.request(StatusSuccess)
	return expired, nil
}

// GetExpiration returns the expiration for the given key.
// Returns zero if the item has already expired.
func (c *Cache[T]) GetExpiration(key string) (time.Time, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		c.metrics.request(StatusFailure)
		return time.Time{}, ErrCacheClosed
	}
	it, ok := c.index[key]
	if !ok {
		c.mu.RUnlock()
		c.metrics.request(StatusSuccess)
		return time.Time{}, ErrNotFound
	}
	if c.expired(it) {
		c.mu.RUnlock()
		c.metrics.request(StatusSuccess)
		return time.Time{}, nil
	}
	expiresAt := it.expiresAt
	c.mu.RUnlock()
	c.metrics.request(StatusSuccess)
	return expiresAt, nil
}

func (c *cache[T]) sortItems() {
	if c.sorted {
		return
	}
	// sort the slice of items by expiration time
	slices.SortFunc(c.items, func(i, j *item[T]) int {
		return i.expiresAt.Compare(j.expiresAt)
	})
	c.sorted = true
}

// removeExpired deletes all expired items and returns how many were deleted.
// The items must be sorted and the write lock held.
func (c *cache[T]) removeExpired() int {
	t := c.clock.Now()
	index := sort.Search(len(c.items), func(i int) bool {
		// smallest index with an expiration greater than t
		return c.items[i].expiresAt.After(t)
	})

	// delete the expired items
	for _, v := range c.items[:index] {
		delete(c.index, v.key)
	}
	c.metrics.evicted(EvictionReasonExpired, index)
	// remove the expired items from the slice
	c.items = c.items[index:]
	return index
}

// deleteExpired deletes all expired items from the cache.
// It is called by the janitor.
func (c *cache[T]) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.sortItems()
	c.removeExpired()
}

type janitor[T any] struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor[T]) run(c *cache[T]) {
	ticker := time.NewTicker(j.interval)
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			ticker.Stop()
			return
		}
	}
}
