// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the folio daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AssetFetchTotal tracks individual fetch attempts by asset and outcome.
	AssetFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_asset_fetch_total",
		Help: "Total number of asset fetch attempts by asset name and result",
	}, []string{"asset", "result"})

	// AssetFetchDuration tracks the duration of individual fetch attempts.
	AssetFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "folio_asset_fetch_duration_seconds",
		Help:    "Duration of individual asset fetch attempts",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"asset"})

	// AssetRetryTotal counts retry attempts against the primary asset URL.
	AssetRetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_asset_retry_total",
		Help: "Total number of retries against the primary asset URL",
	}, []string{"asset"})

	// AssetFallbackTotal counts attempts against fallback base URLs.
	AssetFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_asset_fallback_total",
		Help: "Total number of fetch attempts against fallback base URLs",
	}, []string{"asset"})

	// AssetLoadFailureTotal counts exhausted loads (all attempts and fallbacks failed).
	AssetLoadFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_asset_load_failures_total",
		Help: "Total number of asset loads that exhausted every attempt and fallback",
	}, []string{"asset"})

	// BundleLoadDuration tracks the time to load the full asset bundle.
	BundleLoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "folio_bundle_load_duration_seconds",
		Help:    "Time taken to load the complete viewer asset bundle",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"result"})

	// AssetCacheTotal tracks read-through cache lookups.
	AssetCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_asset_cache_total",
		Help: "Total number of asset cache lookups by result",
	}, []string{"result"})
)

// IncAssetFetch records a fetch attempt outcome.
func IncAssetFetch(asset, result string) {
	AssetFetchTotal.WithLabelValues(asset, result).Inc()
}

// ObserveAssetFetch records the duration of a fetch attempt.
func ObserveAssetFetch(asset string, duration time.Duration) {
	AssetFetchDuration.WithLabelValues(asset).Observe(duration.Seconds())
}

// IncAssetRetry records a retry against the primary URL.
func IncAssetRetry(asset string) {
	AssetRetryTotal.WithLabelValues(asset).Inc()
}

// IncAssetFallback records an attempt against a fallback base URL.
func IncAssetFallback(asset string) {
	AssetFallbackTotal.WithLabelValues(asset).Inc()
}

// IncAssetLoadFailure records an exhausted asset load.
func IncAssetLoadFailure(asset string) {
	AssetLoadFailureTotal.WithLabelValues(asset).Inc()
}

// ObserveBundleLoad records the duration of a full bundle load.
func ObserveBundleLoad(success bool, duration time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	BundleLoadDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// IncAssetCache records a cache lookup outcome.
func IncAssetCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	AssetCacheTotal.WithLabelValues(result).Inc()
}
