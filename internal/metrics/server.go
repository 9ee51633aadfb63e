// SPDX-License-Identifier: MIT
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PageProxyRequestTotal counts page proxy requests by upstream status.
	PageProxyRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_page_proxy_requests_total",
		Help: "Total number of document page proxy requests by upstream status",
	}, []string{"status"})

	// PageProxyBytesTotal counts bytes streamed through the page proxy.
	PageProxyBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "folio_page_proxy_bytes_total",
		Help: "Total number of page bytes streamed to viewer runtimes",
	})

	// RateLimitRejectionTotal counts requests rejected by a rate limiter.
	RateLimitRejectionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_ratelimit_rejections_total",
		Help: "Total number of requests rejected by rate limiting",
	}, []string{"scope"})
)

// IncPageProxyRequest records a page proxy request outcome.
func IncPageProxyRequest(status int) {
	PageProxyRequestTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// AddPageProxyBytes records bytes streamed through the page proxy.
func AddPageProxyBytes(n int64) {
	PageProxyBytesTotal.Add(float64(n))
}

// IncRateLimitRejection records a rate limit rejection.
func IncRateLimitRejection(scope string) {
	RateLimitRejectionTotal.WithLabelValues(scope).Inc()
}
