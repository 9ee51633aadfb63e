// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"time"

	"github.com/foliostream/folio/internal/validate"
)

// Runtime values accepted for session.runtime.
const (
	RuntimeWS      = "ws"
	RuntimeSandbox = "sandbox"
)

// Validate checks the fully merged configuration and reports every problem at
// once. A failed validation must abort startup before any network activity.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.BaseURL("assets.baseUrl", cfg.Assets.BaseURL)
	v.NotEmpty("assets.versionTag", cfg.Assets.VersionTag)
	for i, fb := range cfg.Assets.FallbackBaseURLs {
		v.BaseURL(fmt.Sprintf("assets.fallbackBaseUrls[%d]", i), fb)
	}
	v.Duration("assets.fetchTimeout", cfg.Assets.FetchTimeout, 100*time.Millisecond, 5*time.Minute)
	v.Range("assets.maxAttempts", cfg.Assets.MaxAttempts, 1, 10)
	v.Duration("assets.retryDelay", cfg.Assets.RetryDelay, 0, time.Minute)

	v.BaseURL("backend.baseUrl", cfg.Backend.BaseURL)
	v.Duration("backend.timeout", cfg.Backend.Timeout, 100*time.Millisecond, 5*time.Minute)

	v.Positive("session.initialPage", cfg.Session.InitialPage)
	if cfg.Session.InitialZoom <= 0 {
		v.AddError("session.initialZoom", fmt.Sprintf("zoom must be positive, got %v", cfg.Session.InitialZoom), cfg.Session.InitialZoom)
	}
	v.OneOf("session.runtime", cfg.Session.Runtime, []string{RuntimeWS, RuntimeSandbox})

	v.NotEmpty("server.listen", cfg.Server.Listen)
	v.NotEmpty("server.metricsListen", cfg.Server.MetricsListen)
	v.Positive("server.rateLimitRpm", cfg.Server.RateLimitRPM)

	v.OneOf("cache.backend", cfg.Cache.Backend, []string{"none", "memory", "redis", "disk"})
	switch cfg.Cache.Backend {
	case "disk":
		v.Directory("cache.dir", cfg.Cache.Dir, false)
	case "redis":
		v.NotEmpty("cache.redisAddr", cfg.Cache.RedisAddr)
	}
	if cfg.Cache.Backend != "none" {
		v.Duration("cache.ttl", cfg.Cache.TTL, time.Second, 24*time.Hour)
		v.Positive("cache.maxEntries", cfg.Cache.MaxEntries)
	}

	v.OneOf("store.backend", cfg.Store.Backend, []string{"memory", "sqlite", "badger"})
	if cfg.Store.Backend == "sqlite" || cfg.Store.Backend == "badger" {
		v.Directory("store.dir", cfg.Store.Dir, false)
	}

	if _, err := validate.ParseLogLevel(cfg.Log.Level); err != nil {
		v.AddError("log.level", err.Error(), cfg.Log.Level)
	}

	if cfg.OTEL.Enabled {
		v.NotEmpty("otel.endpoint", cfg.OTEL.Endpoint)
		v.OneOf("otel.protocol", cfg.OTEL.Protocol, []string{"grpc", "http"})
		if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
			v.AddError("otel.sampleRatio", fmt.Sprintf("ratio must be within [0,1], got %v", cfg.OTEL.SampleRatio), cfg.OTEL.SampleRatio)
		}
	}

	return v.Err()
}
