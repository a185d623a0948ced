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
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	testclock "k8s.io/utils/clock/testing"
)

func TestCache(t *testing.T) {
	t.Run("Add and update keys", func(t *testing.T) {
		g := NewWithT(t)
		cache, err := New[string](3,
			WithMetricsRegisterer(prometheus.NewPedanticRegistry()),
			WithCleanupInterval(1*time.Second))
		g.Expect(err).ToNot(HaveOccurred())
		defer cache.Close()

		// Get an Item from the cache
		key1 := "key1"
		value1 := "val1"
		got, err := cache.Get(key1)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(got).To(BeNil())

		// Add an item to the cache
		err = cache.Set(key1, value1)
		g.Expect(err).ToNot(HaveOccurred())

		// Get the item from the cache
		got, err = cache.Get(key1)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(*got).To(Equal(value1))

		// Writing to the obtained value doesn't update the cache.
		*got = "val2"
		got2, err := cache.Get(key1)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(*got2).To(Equal(value1))

		// Add another item to the cache
		key2 := "key2"
		value2 := "val2"
		err = cache.Set(key2, value2)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(cache.ListKeys()).To(ConsistOf(key1, key2))

		// Replace an item in the cache
		err = cache.Set(key2, "val3")
		g.Expect(err).ToNot(HaveOccurred())
		got, err = cache.Get(key2)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(*got).To(Equal("val3"))
		g.Expect(cache.Len()).To(Equal(2))

		// cleanup the cache
		cache.Clear()
		g.Expect(cache.ListKeys()).To(BeEmpty())
	})

	t.Run("Cache of integer value", func(t *testing.T) {
		g := NewWithT(t)

		cache, err := New[int](3, WithMetricsRegisterer(prometheus.NewPedanticRegistry()))
		g.Expect(err).ToNot(HaveOccurred())
		defer cache.Close()

		key := "key1"
		g.Expect(cache.Set(key, 4)).To(Succeed())

		got, err := cache.Get(key)
		g.Expect(err).To(Succeed())
		g.Expect(*got).To(Equal(4))
	})

	t.Run("Invalid configuration", func(t *testing.T) {
		g := NewWithT(t)

		_, err := New[string](0)
		g.Expect(errors.Is(err, ErrInvalidSize)).To(BeTrue())

		_, err = New[string](-1)
		g.Expect(errors.Is(err, ErrInvalidSize)).To(BeTrue())

		_, err = New[string](1, WithTTL(0))
		g.Expect(errors.Is(err, ErrInvalidTTL)).To(BeTrue())
	})
}

func Test_Cache_TTL(t *testing.T) {
	g := NewWithT(t)
	clock := testclock.NewFakeClock(time.Now())
	cache, err := New[string](5, WithTTL(time.Minute), WithClock(clock))
	g.Expect(err).ToNot(HaveOccurred())
	defer cache.Close()

	g.Expect(cache.Set("key1", "val1")).To(Succeed())

	clock.Step(59 * time.Second)
	got, err := cache.Get("key1")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(*got).To(Equal("val1"))

	// Writing with Set restarts the ttl.
	g.Expect(cache.Set("key1", "val2")).To(Succeed())
	clock.Step(59 * time.Second)
	got, err = cache.Get("key1")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(*got).To(Equal("val2"))

	clock.Step(time.Second)
	got, err = cache.Get("key1")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(got).To(BeNil())

	expired, err := cache.HasExpired("key1")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(expired).To(BeTrue())
}

func Test_Cache_SetWithExpiration(t *testing.T) {
	g := NewWithT(t)
	now := time.Now()
	clock := testclock.NewFakeClock(now)
	cache, err := New[string](5, WithClock(clock))
	g.Expect(err).ToNot(HaveOccurred())
	defer cache.Close()

	expiresAt := now.Add(10 * time.Second)
	g.Expect(cache.SetWithExpiration("key1", "val1", expiresAt)).To(Succeed())

	exp, err := cache.GetExpiration("key1")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(exp).To(Equal(expiresAt))

	// Rewriting a live item replaces the value but keeps the expiration.
	clock.Step(5 * time.Second)
	g.Expect(cache.SetWithExpiration("key1", "val2", now.Add(time.Hour))).To(Succeed())
	exp, err = cache.GetExpiration("key1")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(exp).To(Equal(expiresAt))
	got, gotExp, err := cache.GetWithExpiration("key1")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(*got).To(Equal("val2"))
	g.Expect(gotExp).To(Equal(expiresAt))

	// Reads don't extend the expiration either.
	clock.Step(5 * time.Second)
	got, err = cache.Get("key1")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(got).To(BeNil())
	exp, err = cache.GetExpiration("key1")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(exp).To(BeZero())

	// An expired item is recreated with the new expiration.
	newExpiresAt := clock.Now().Add(time.Minute)
	g.Expect(cache.SetWithExpiration("key1", "val3", newExpiresAt)).To(Succeed())
	exp, err = cache.GetExpiration("key1")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(exp).To(Equal(newExpiresAt))

	_, err = cache.GetExpiration("unknown")
	g.Expect(err).To(Equal(ErrNotFound))
}

func Test_Cache_Eviction(t *testing.T) {
	t.Run("evicts the item closest to its expiration", func(t *testing.T) {
		g := NewWithT(t)
		now := time.Now()
		clock := testclock.NewFakeClock(now)
		cache, err := New[string](3, WithClock(clock))
		g.Expect(err).ToNot(HaveOccurred())
		defer cache.Close()

		g.Expect(cache.SetWithExpiration("key1", "val1", now.Add(3*time.Minute))).To(Succeed())
		g.Expect(cache.SetWithExpiration("key2", "val2", now.Add(1*time.Minute))).To(Succeed())
		g.Expect(cache.SetWithExpiration("key3", "val3", now.Add(2*time.Minute))).To(Succeed())

		g.Expect(cache.SetWithExpiration("key4", "val4", now.Add(4*time.Minute))).To(Succeed())
		g.Expect(cache.ListKeys()).To(ConsistOf("key1", "key3", "key4"))

		g.Expect(cache.SetWithExpiration("key5", "val5", now.Add(5*time.Minute))).To(Succeed())
		g.Expect(cache.ListKeys()).To(ConsistOf("key1", "key4", "key5"))
	})

	t.Run("evicts expired items first", func(t *testing.T) {
		g := NewWithT(t)
		now := time.Now()
		clock := testclock.NewFakeClock(now)
		cache, err := New[string](3, WithClock(clock))
		g.Expect(err).ToNot(HaveOccurred())
		defer cache.Close()

		g.Expect(cache.SetWithExpiration("key1", "val1", now.Add(1*time.Minute))).To(Succeed())
		g.Expect(cache.SetWithExpiration("key2", "val2", now.Add(2*time.Minute))).To(Succeed())
		g.Expect(cache.SetWithExpiration("key3", "val3", now.Add(10*time.Minute))).To(Succeed())

		clock.Step(3 * time.Minute)
		g.Expect(cache.SetWithExpiration("key4", "val4", clock.Now().Add(time.Minute))).To(Succeed())
		g.Expect(cache.ListKeys()).To(ConsistOf("key3", "key4"))
	})

	t.Run("updating an existing key doesn't evict", func(t *testing.T) {
		g := NewWithT(t)
		cache, err := New[string](2)
		g.Expect(err).ToNot(HaveOccurred())
		defer cache.Close()

		g.Expect(cache.Set("key1", "val1")).To(Succeed())
		g.Expect(cache.Set("key2", "val2")).To(Succeed())
		g.Expect(cache.Set("key2", "val3")).To(Succeed())
		g.Expect(cache.ListKeys()).To(ConsistOf("key1", "key2"))
	})
}

func Test_Cache_deleteExpired(t *testing.T) {
	type expiringItem struct {
		key       string
		value     string
		expiresIn time.Duration
	}
	tests := []struct {
		name           string
		items          []expiringItem
		nonExpiredKeys []string
	}{
		{
			name: "non expiring items",
			items: []expiringItem{
				{key: "test", value: "test-token", expiresIn: noExpiration},
				{key: "test2", value: "test-token2", expiresIn: noExpiration},
			},
			nonExpiredKeys: []string{"test", "test2"},
		},
		{
			name: "expiring items",
			items: []expiringItem{
				{key: "test", value: "test-token", expiresIn: 1 * time.Millisecond},
				{key: "test2", value: "test-token2", expiresIn: 1 * time.Millisecond},
			},
			nonExpiredKeys: []string{},
		},
		{
			name: "mixed items",
			items: []expiringItem{
				{key: "test", value: "test-token", expiresIn: 1 * time.Millisecond},
				{key: "test2", value: "test-token2", expiresIn: noExpiration},
				{key: "test3", value: "test-token3", expiresIn: 1 * time.Minute},
			},
			nonExpiredKeys: []string{"test2", "test3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			now := time.Now()
			clock := testclock.NewFakeClock(now)
			cache, err := New[string](5,
				WithMetricsRegisterer(prometheus.NewPedanticRegistry()),
				WithClock(clock))
			g.Expect(err).ToNot(HaveOccurred())
			defer cache.Close()

			for _, item := range tt.items {
				err := cache.SetWithExpiration(item.key, item.value, now.Add(item.expiresIn))
				g.Expect(err).ToNot(HaveOccurred())
			}

			clock.Step(5 * time.Millisecond)
			cache.deleteExpired()
			keys, err := cache.ListKeys()
			g.Expect(err).ToNot(HaveOccurred())
			g.Expect(keys).To(ConsistOf(tt.nonExpiredKeys))
		})
	}
}

func Test_Cache_Janitor(t *testing.T) {
	g := NewWithT(t)
	cache, err := New[string](5,
		WithTTL(10*time.Millisecond),
		WithCleanupInterval(5*time.Millisecond))
	g.Expect(err).ToNot(HaveOccurred())
	defer cache.Close()

	g.Expect(cache.Set("key1", "val1")).To(Succeed())
	g.Eventually(func() int { return cache.Len() }, time.Second, 5*time.Millisecond).Should(BeZero())
}

func Test_Cache_Close(t *testing.T) {
	g := NewWithT(t)
	cache, err := New[string](5)
	g.Expect(err).ToNot(HaveOccurred())

	g.Expect(cache.Close()).To(Succeed())
	g.Expect(cache.Close()).To(Equal(ErrCacheClosed))

	g.Expect(cache.Set("key1", "val1")).To(Equal(ErrCacheClosed))
	_, err = cache.Get("key1")
	g.Expect(err).To(Equal(ErrCacheClosed))
	_, err = cache.ListKeys()
	g.Expect(err).To(Equal(ErrCacheClosed))
}

func TestCache_Concurrent(t *testing.T) {
	const (
		concurrency = 500
		keysNum     = 10
	)
	g := NewWithT(t)
	cache, err := New[string](10,
		WithCleanupInterval(1*time.Second),
		WithMetricsRegisterer(prometheus.NewPedanticRegistry()))
	g.Expect(err).ToNot(HaveOccurred())
	defer cache.Close()

	keymap := map[int]string{}
	for i := 0; i < keysNum; i++ {
		key := fmt.Sprintf("test-%d", i)
		keymap[i] = key
		g.Expect(cache.Set(key, "test-token")).To(Succeed())
	}

	wg := sync.WaitGroup{}
	run := make(chan bool)

	// simulate concurrent read and write
	for i := 0; i < concurrency; i++ {
		key := rand.IntN(keysNum)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-run
			_ = cache.SetWithExpiration(keymap[key], "test-token", time.Now().Add(time.Hour))
		}()
		go func() {
			defer wg.Done()
			<-run
			_, _ = cache.Get(keymap[key])
		}()
	}
	close(run)
	wg.Wait()

	keys, err := cache.ListKeys()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(len(keys)).To(Equal(len(keymap)))

	for _, key := range keymap {
		val, err := cache.Get(key)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(val).ToNot(BeNil(), "object %s not found", key)
		g.Expect(*val).To(Equal("test-token"))
	}
}
