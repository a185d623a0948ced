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

// Package cache provides a Store interface for a cache store, along with an
// implementation of this interface for a bounded expiring cache (Cache).
// Expirable defines an interface for cache with expiring items, also
// implemented by Cache.
// The Cache implementation is generic. The data type of the value stored in
// the cache has to be defined when creating the cache. For example, for
// storing string values that live for five minutes create a string type Cache
//
//	cache, err := New[string](10, WithTTL(5*time.Minute))
//
// Items can also carry their own expiration time, set once when the item is
// created:
//
//	err := cache.SetWithExpiration("foo", "bar", time.Now().Add(time.Hour))
//
// When the cache is full, writing a new key evicts the expired items and,
// if none expired, the item closest to its expiration.
//
// The cache is self-instrumenting and exports metrics about the internal
// operations of the cache if it is configured with a metrics registerer.
//
//	cache, err := New[string](10, WithMetricsRegisterer(reg), WithMetricsPrefix("s3ag_"))
package cache
