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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// CacheEventTypeMiss is the event type for cache misses.
	CacheEventTypeMiss = "cache_miss"
	// CacheEventTypeHit is the event type for cache hits.
	CacheEventTypeHit = "cache_hit"
	// StatusSuccess is the status for successful cache requests.
	StatusSuccess = "success"
	// StatusFailure is the status for failed cache requests.
	StatusFailure = "failure"
	// EvictionReasonExpired is the reason of the evictions of expired items.
	EvictionReasonExpired = "expired"
	// EvictionReasonCapacity is the reason of the evictions of live items
	// making room for new ones.
	EvictionReasonCapacity = "capacity"
)

// metrics instruments a cache. All the methods are no-ops on a nil
// *metrics, which is what a cache without registerer holds.
type metrics struct {
	events    *prometheus.CounterVec
	items     prometheus.Gauge
	requests  *prometheus.CounterVec
	evictions *prometheus.CounterVec
}

// newMetrics returns the metrics of a cache, registered with reg. The names
// of the metrics start with prefix.
func newMetrics(prefix string, reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "cache_events_total",
			Help: "Total number of cache retrieval events partitioned by hit or miss.",
		}, []string{"event_type"}),
		items: factory.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "cached_items",
			Help: "Total number of items in the cache.",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "cache_requests_total",
			Help: "Total number of cache requests partitioned by success or failure.",
		}, []string{"status"}),
		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "cache_evictions_total",
			Help: "Total number of cache evictions partitioned by reason.",
		}, []string{"reason"}),
	}
}

func (m *metrics) request(status string) {
	if m != nil {
		m.requests.WithLabelValues(status).Inc()
	}
}

// lookup records a successful read, hit or miss.
func (m *metrics) lookup(hit bool) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(StatusSuccess).Inc()
	event := CacheEventTypeMiss
	if hit {
		event = CacheEventTypeHit
	}
	m.events.WithLabelValues(event).Inc()
}

func (m *metrics) added() {
	if m != nil {
		m.items.Inc()
	}
}

func (m *metrics) evicted(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.evictions.WithLabelValues(reason).Add(float64(n))
	m.items.Sub(float64(n))
}

func (m *metrics) cleared() {
	if m != nil {
		m.items.Set(0)
	}
}
