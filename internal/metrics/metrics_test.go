// SPDX-License-Identifier: MIT
package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to get metric value from a gauge
func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	err := gauge.Write(metric)
	require.NoError(t, err)
	return metric.GetGauge().GetValue()
}

// Helper function to get metric value from a counter
func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	err := counter.Write(metric)
	require.NoError(t, err)
	return metric.GetCounter().GetValue()
}

// Helper function to get metric value from a labeled counter
func getCounterVecValue(t *testing.T, counterVec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter := counterVec.WithLabelValues(labels...)
	return getCounterValue(t, counter)
}

func TestIncAssetFetch(t *testing.T) {
	initial := getCounterVecValue(t, AssetFetchTotal, "viewer.css", "ok")

	IncAssetFetch("viewer.css", "ok")
	IncAssetFetch("viewer.css", "ok")

	final := getCounterVecValue(t, AssetFetchTotal, "viewer.css", "ok")
	assert.Equal(t, initial+2, final)
}

func TestIncAssetRetryAndFallback(t *testing.T) {
	retryBefore := getCounterVecValue(t, AssetRetryTotal, "viewer.js")
	fallbackBefore := getCounterVecValue(t, AssetFallbackTotal, "viewer.js")

	IncAssetRetry("viewer.js")
	IncAssetFallback("viewer.js")
	IncAssetFallback("viewer.js")

	assert.Equal(t, retryBefore+1, getCounterVecValue(t, AssetRetryTotal, "viewer.js"))
	assert.Equal(t, fallbackBefore+2, getCounterVecValue(t, AssetFallbackTotal, "viewer.js"))
}

func TestObserveBundleLoad(t *testing.T) {
	// Smoke test: recording both outcomes must not panic
	ObserveBundleLoad(true, 1200*time.Millisecond)
	ObserveBundleLoad(false, 300*time.Millisecond)
}

func TestIncAssetCache(t *testing.T) {
	hitBefore := getCounterVecValue(t, AssetCacheTotal, "hit")
	missBefore := getCounterVecValue(t, AssetCacheTotal, "miss")

	IncAssetCache(true)
	IncAssetCache(false)
	IncAssetCache(false)

	assert.Equal(t, hitBefore+1, getCounterVecValue(t, AssetCacheTotal, "hit"))
	assert.Equal(t, missBefore+2, getCounterVecValue(t, AssetCacheTotal, "miss"))
}

func TestBridgeCounters(t *testing.T) {
	cmdBefore := getCounterVecValue(t, BridgeCommandTotal, "SET_PAGE")
	evtBefore := getCounterVecValue(t, BridgeEventTotal, "PAGE_CHANGED")
	dropBefore := getCounterVecValue(t, BridgeDroppedTotal, DropNoTransport)

	IncBridgeCommand("SET_PAGE")
	IncBridgeEvent("PAGE_CHANGED")
	IncBridgeDropped(DropNoTransport)

	assert.Equal(t, cmdBefore+1, getCounterVecValue(t, BridgeCommandTotal, "SET_PAGE"))
	assert.Equal(t, evtBefore+1, getCounterVecValue(t, BridgeEventTotal, "PAGE_CHANGED"))
	assert.Equal(t, dropBefore+1, getCounterVecValue(t, BridgeDroppedTotal, DropNoTransport))
}

func TestBridgeTransportGauge(t *testing.T) {
	before := getGaugeValue(t, BridgeTransportsActive)

	IncBridgeTransport()
	assert.Equal(t, before+1, getGaugeValue(t, BridgeTransportsActive))

	DecBridgeTransport()
	assert.Equal(t, before, getGaugeValue(t, BridgeTransportsActive))
}

func TestSessionMetrics(t *testing.T) {
	transBefore := getCounterVecValue(t, SessionTransitionTotal, "initializing", "loading_assets")
	activeBefore := getGaugeValue(t, SessionsActive)

	IncSessionTransition("initializing", "loading_assets")
	IncSessionsActive()

	assert.Equal(t, transBefore+1, getCounterVecValue(t, SessionTransitionTotal, "initializing", "loading_assets"))
	assert.Equal(t, activeBefore+1, getGaugeValue(t, SessionsActive))

	DecSessionsActive()
	assert.Equal(t, activeBefore, getGaugeValue(t, SessionsActive))

	ObserveSessionReady(2 * time.Second)
}

func TestPageProxyMetrics(t *testing.T) {
	bytesBefore := getCounterValue(t, PageProxyBytesTotal)
	reqBefore := getCounterVecValue(t, PageProxyRequestTotal, "200")

	IncPageProxyRequest(200)
	AddPageProxyBytes(4096)

	assert.Equal(t, reqBefore+1, getCounterVecValue(t, PageProxyRequestTotal, "200"))
	assert.Equal(t, bytesBefore+4096, getCounterValue(t, PageProxyBytesTotal))
}

func TestRateLimitRejection(t *testing.T) {
	before := getCounterVecValue(t, RateLimitRejectionTotal, "viewer")
	IncRateLimitRejection("viewer")
	assert.Equal(t, before+1, getCounterVecValue(t, RateLimitRejectionTotal, "viewer"))
}
