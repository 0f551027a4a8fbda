// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meeple",
		Subsystem: "cache",
		Name:      "hits_total",
	})
	MissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meeple",
		Subsystem: "cache",
		Name:      "misses_total",
	})
	CorruptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meeple",
		Subsystem: "cache",
		Name:      "corrupt_total",
	})
	EvictTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meeple",
		Subsystem: "cache",
		Name:      "evict_total",
	})

	ComputeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meeple",
		Subsystem: "cache",
		Name:      "compute_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})
	GetSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meeple",
		Subsystem: "cache",
		Name:      "get_seconds",
	})
	PutSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meeple",
		Subsystem: "cache",
		Name:      "put_seconds",
	})
)
