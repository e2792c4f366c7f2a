// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the graph cache.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planner_graph_cache_hits_total",
		Help: "Envelope reads served without rebuilding",
	})

	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_graph_cache_misses_total",
		Help: "Cache misses by reason",
	}, []string{"reason"})

	cacheRebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planner_graph_rebuilds_total",
		Help: "Graph rebuild passes executed",
	})

	cacheInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planner_graph_cache_invalidations_total",
		Help: "Explicit cache invalidations",
	})

	cacheSaveFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planner_graph_cache_save_failures_total",
		Help: "Envelope writes that failed after a rebuild",
	})

	rebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_graph_rebuild_duration_seconds",
		Help:    "Time spent rebuilding the dependency graph",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	graphServices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "planner_graph_services",
		Help: "Services in the most recently built graph",
	})
)

// Miss reasons for planner_graph_cache_misses_total.
const (
	missReasonAbsent  = "absent"
	missReasonCorrupt = "corrupt"
	missReasonExpired = "expired"
	missReasonForced  = "forced"
)
