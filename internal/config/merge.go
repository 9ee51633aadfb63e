// SPDX-License-Identifier: MIT

package config

// Environment variable keys consumed by the loader.
const (
	EnvAssetBaseURL      = "FOLIO_ASSET_BASE_URL"
	EnvAssetVersionTag   = "FOLIO_ASSET_VERSION_TAG"
	EnvAssetFallbackURLs = "FOLIO_ASSET_FALLBACK_URLS"
	EnvAssetTimeout      = "FOLIO_ASSET_TIMEOUT"
	EnvAssetMaxAttempts  = "FOLIO_ASSET_MAX_ATTEMPTS"
	EnvAssetRetryDelay   = "FOLIO_ASSET_RETRY_DELAY"
	EnvAssetAllowedHosts = "FOLIO_ASSET_ALLOWED_HOSTS"

	EnvBackendURL     = "FOLIO_BACKEND_URL"
	EnvBackendTimeout = "FOLIO_BACKEND_TIMEOUT"

	EnvSessionInitialPage = "FOLIO_SESSION_INITIAL_PAGE"
	EnvSessionInitialZoom = "FOLIO_SESSION_INITIAL_ZOOM"
	EnvSessionRuntime     = "FOLIO_SESSION_RUNTIME"

	EnvListen        = "FOLIO_LISTEN"
	EnvMetricsListen = "FOLIO_METRICS_LISTEN"
	EnvAPIToken      = "FOLIO_API_TOKEN" // #nosec G101 -- env key name, not a credential
	EnvRateLimitRPM  = "FOLIO_RATE_LIMIT_RPM"
	EnvViewerRate    = "FOLIO_VIEWER_RATE"
	EnvViewerBurst   = "FOLIO_VIEWER_BURST"

	EnvCacheBackend    = "FOLIO_CACHE_BACKEND"
	EnvCacheTTL        = "FOLIO_CACHE_TTL"
	EnvCacheDir        = "FOLIO_CACHE_DIR"
	EnvCacheMaxEntries = "FOLIO_CACHE_MAX_ENTRIES"
	EnvRedisAddr       = "FOLIO_REDIS_ADDR"
	EnvRedisPassword   = "FOLIO_REDIS_PASSWORD" // #nosec G101 -- env key name, not a credential
	EnvRedisDB         = "FOLIO_REDIS_DB"

	EnvStoreBackend = "FOLIO_STORE_BACKEND"
	EnvStoreDir     = "FOLIO_STORE_DIR"

	EnvLogLevel = "FOLIO_LOG_LEVEL"

	EnvOTELEnabled     = "FOLIO_OTEL_ENABLED"
	EnvOTELEndpoint    = "FOLIO_OTEL_ENDPOINT"
	EnvOTELProtocol    = "FOLIO_OTEL_PROTOCOL"
	EnvOTELSampleRatio = "FOLIO_OTEL_SAMPLE_RATIO"
)

func setDefaults(cfg *AppConfig) {
	cfg.Assets.VersionTag = DefaultVersionTag
	cfg.Assets.FetchTimeout = DefaultFetchTimeout
	cfg.Assets.MaxAttempts = DefaultMaxAttempts
	cfg.Assets.RetryDelay = DefaultRetryDelay

	cfg.Backend.Timeout = DefaultBackendTimeout

	cfg.Session.InitialPage = DefaultInitialPage
	cfg.Session.InitialZoom = DefaultInitialZoom
	cfg.Session.Runtime = DefaultRuntime

	cfg.Server.Listen = DefaultListen
	cfg.Server.MetricsListen = DefaultMetricsListen
	cfg.Server.RateLimitRPM = DefaultRateLimitRPM
	cfg.Server.ViewerRate = DefaultViewerRate
	cfg.Server.ViewerBurst = DefaultViewerBurst

	cfg.Cache.Backend = DefaultCacheBackend
	cfg.Cache.TTL = DefaultCacheTTL
	cfg.Cache.MaxEntries = DefaultCacheEntries

	cfg.Store.Backend = DefaultStoreBackend

	cfg.Log.Level = DefaultLogLevel

	cfg.OTEL.Protocol = DefaultOTELProtocol
	cfg.OTEL.SampleRatio = DefaultOTELSampleRatio
}

// mergeFileConfig overlays file values onto cfg. Nil pointers mean the field
// was absent from the file and the current value is kept.
func mergeFileConfig(cfg *AppConfig, file *FileConfig) {
	if file == nil {
		return
	}
	if a := file.Assets; a != nil {
		setString(&cfg.Assets.BaseURL, a.BaseURL)
		setString(&cfg.Assets.VersionTag, a.VersionTag)
		if a.FallbackBaseURLs != nil {
			cfg.Assets.FallbackBaseURLs = append([]string(nil), a.FallbackBaseURLs...)
		}
		if a.FetchTimeout != nil {
			cfg.Assets.FetchTimeout = *a.FetchTimeout
		}
		setInt(&cfg.Assets.MaxAttempts, a.MaxAttempts)
		if a.RetryDelay != nil {
			cfg.Assets.RetryDelay = *a.RetryDelay
		}
		if a.AllowedHosts != nil {
			cfg.Assets.AllowedHosts = append([]string(nil), a.AllowedHosts...)
		}
	}
	if b := file.Backend; b != nil {
		setString(&cfg.Backend.BaseURL, b.BaseURL)
		if b.Timeout != nil {
			cfg.Backend.Timeout = *b.Timeout
		}
	}
	if s := file.Session; s != nil {
		setInt(&cfg.Session.InitialPage, s.InitialPage)
		setFloat(&cfg.Session.InitialZoom, s.InitialZoom)
		setString(&cfg.Session.Runtime, s.Runtime)
	}
	if s := file.Server; s != nil {
		setString(&cfg.Server.Listen, s.Listen)
		setString(&cfg.Server.MetricsListen, s.MetricsListen)
		setString(&cfg.Server.APIToken, s.APIToken)
		setInt(&cfg.Server.RateLimitRPM, s.RateLimitRPM)
		setFloat(&cfg.Server.ViewerRate, s.ViewerRate)
		setInt(&cfg.Server.ViewerBurst, s.ViewerBurst)
	}
	if c := file.Cache; c != nil {
		setString(&cfg.Cache.Backend, c.Backend)
		if c.TTL != nil {
			cfg.Cache.TTL = *c.TTL
		}
		setString(&cfg.Cache.Dir, c.Dir)
		setInt(&cfg.Cache.MaxEntries, c.MaxEntries)
		setString(&cfg.Cache.RedisAddr, c.RedisAddr)
		setString(&cfg.Cache.RedisPassword, c.RedisPassword)
		setInt(&cfg.Cache.RedisDB, c.RedisDB)
	}
	if s := file.Store; s != nil {
		setString(&cfg.Store.Backend, s.Backend)
		setString(&cfg.Store.Dir, s.Dir)
	}
	if l := file.Log; l != nil {
		setString(&cfg.Log.Level, l.Level)
	}
	if o := file.OTEL; o != nil {
		if o.Enabled != nil {
			cfg.OTEL.Enabled = *o.Enabled
		}
		setString(&cfg.OTEL.Endpoint, o.Endpoint)
		setString(&cfg.OTEL.Protocol, o.Protocol)
		setFloat(&cfg.OTEL.SampleRatio, o.SampleRatio)
	}
}

// mergeEnvConfig overlays environment values onto cfg (highest precedence).
func mergeEnvConfig(cfg *AppConfig) {
	cfg.Assets.BaseURL = ParseString(EnvAssetBaseURL, cfg.Assets.BaseURL)
	cfg.Assets.VersionTag = ParseString(EnvAssetVersionTag, cfg.Assets.VersionTag)
	cfg.Assets.FallbackBaseURLs = ParseList(EnvAssetFallbackURLs, cfg.Assets.FallbackBaseURLs)
	cfg.Assets.FetchTimeout = ParseDuration(EnvAssetTimeout, cfg.Assets.FetchTimeout)
	cfg.Assets.MaxAttempts = ParseInt(EnvAssetMaxAttempts, cfg.Assets.MaxAttempts)
	cfg.Assets.RetryDelay = ParseDuration(EnvAssetRetryDelay, cfg.Assets.RetryDelay)
	cfg.Assets.AllowedHosts = ParseList(EnvAssetAllowedHosts, cfg.Assets.AllowedHosts)

	cfg.Backend.BaseURL = ParseString(EnvBackendURL, cfg.Backend.BaseURL)
	cfg.Backend.Timeout = ParseDuration(EnvBackendTimeout, cfg.Backend.Timeout)

	cfg.Session.InitialPage = ParseInt(EnvSessionInitialPage, cfg.Session.InitialPage)
	cfg.Session.InitialZoom = ParseFloat(EnvSessionInitialZoom, cfg.Session.InitialZoom)
	cfg.Session.Runtime = ParseString(EnvSessionRuntime, cfg.Session.Runtime)

	cfg.Server.Listen = ParseString(EnvListen, cfg.Server.Listen)
	cfg.Server.MetricsListen = ParseString(EnvMetricsListen, cfg.Server.MetricsListen)
	cfg.Server.APIToken = ParseString(EnvAPIToken, cfg.Server.APIToken)
	cfg.Server.RateLimitRPM = ParseInt(EnvRateLimitRPM, cfg.Server.RateLimitRPM)
	cfg.Server.ViewerRate = ParseFloat(EnvViewerRate, cfg.Server.ViewerRate)
	cfg.Server.ViewerBurst = ParseInt(EnvViewerBurst, cfg.Server.ViewerBurst)

	cfg.Cache.Backend = ParseString(EnvCacheBackend, cfg.Cache.Backend)
	cfg.Cache.TTL = ParseDuration(EnvCacheTTL, cfg.Cache.TTL)
	cfg.Cache.Dir = ParseString(EnvCacheDir, cfg.Cache.Dir)
	cfg.Cache.MaxEntries = ParseInt(EnvCacheMaxEntries, cfg.Cache.MaxEntries)
	cfg.Cache.RedisAddr = ParseString(EnvRedisAddr, cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = ParseString(EnvRedisPassword, cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = ParseInt(EnvRedisDB, cfg.Cache.RedisDB)

	cfg.Store.Backend = ParseString(EnvStoreBackend, cfg.Store.Backend)
	cfg.Store.Dir = ParseString(EnvStoreDir, cfg.Store.Dir)

	cfg.Log.Level = ParseString(EnvLogLevel, cfg.Log.Level)

	cfg.OTEL.Enabled = ParseBool(EnvOTELEnabled, cfg.OTEL.Enabled)
	cfg.OTEL.Endpoint = ParseString(EnvOTELEndpoint, cfg.OTEL.Endpoint)
	cfg.OTEL.Protocol = ParseString(EnvOTELProtocol, cfg.OTEL.Protocol)
	cfg.OTEL.SampleRatio = ParseFloat(EnvOTELSampleRatio, cfg.OTEL.SampleRatio)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}
