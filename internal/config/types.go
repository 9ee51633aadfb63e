// SPDX-License-Identifier: MIT

// Package config loads and validates the folio daemon configuration with the
// precedence ENV > file > defaults.
package config

import "time"

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Assets  AssetsConfig
	Backend BackendConfig
	Session SessionConfig
	Server  ServerConfig
	Cache   CacheConfig
	Store   StoreConfig
	Log     LogConfig
	OTEL    OTELConfig

	Version string
}

// AssetsConfig controls how viewer assets are resolved and fetched.
type AssetsConfig struct {
	BaseURL          string
	VersionTag       string
	FallbackBaseURLs []string
	FetchTimeout     time.Duration
	MaxAttempts      int
	RetryDelay       time.Duration
	AllowedHosts     []string
}

// BackendConfig points at the external page-streaming API.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SessionConfig carries per-session defaults applied at creation time.
type SessionConfig struct {
	InitialPage int
	InitialZoom float64
	Runtime     string // "ws" or "sandbox"
}

// ServerConfig configures the daemon HTTP surface.
type ServerConfig struct {
	Listen        string
	MetricsListen string
	APIToken      string
	RateLimitRPM  int
	ViewerRate    float64
	ViewerBurst   int
}

// CacheConfig selects the asset cache tier.
type CacheConfig struct {
	Backend       string // "none", "memory", "redis" or "disk"
	TTL           time.Duration
	Dir           string
	MaxEntries    int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// StoreConfig selects the session history store engine.
type StoreConfig struct {
	Backend string // "memory", "sqlite" or "badger"
	Dir     string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string
}

// OTELConfig controls trace export.
type OTELConfig struct {
	Enabled     bool
	Endpoint    string
	Protocol    string // "grpc" or "http"
	SampleRatio float64
}

// FileConfig mirrors AppConfig for strict YAML decoding. Only fields listed
// here are accepted in a config file.
type FileConfig struct {
	Assets *struct {
		BaseURL          *string        `yaml:"baseUrl"`
		VersionTag       *string        `yaml:"versionTag"`
		FallbackBaseURLs []string       `yaml:"fallbackBaseUrls"`
		FetchTimeout     *time.Duration `yaml:"fetchTimeout"`
		MaxAttempts      *int           `yaml:"maxAttempts"`
		RetryDelay       *time.Duration `yaml:"retryDelay"`
		AllowedHosts     []string       `yaml:"allowedHosts"`
	} `yaml:"assets"`
	Backend *struct {
		BaseURL *string        `yaml:"baseUrl"`
		Timeout *time.Duration `yaml:"timeout"`
	} `yaml:"backend"`
	Session *struct {
		InitialPage *int     `yaml:"initialPage"`
		InitialZoom *float64 `yaml:"initialZoom"`
		Runtime     *string  `yaml:"runtime"`
	} `yaml:"session"`
	Server *struct {
		Listen        *string  `yaml:"listen"`
		MetricsListen *string  `yaml:"metricsListen"`
		APIToken      *string  `yaml:"apiToken"`
		RateLimitRPM  *int     `yaml:"rateLimitRpm"`
		ViewerRate    *float64 `yaml:"viewerRate"`
		ViewerBurst   *int     `yaml:"viewerBurst"`
	} `yaml:"server"`
	Cache *struct {
		Backend       *string        `yaml:"backend"`
		TTL           *time.Duration `yaml:"ttl"`
		Dir           *string        `yaml:"dir"`
		MaxEntries    *int           `yaml:"maxEntries"`
		RedisAddr     *string        `yaml:"redisAddr"`
		RedisPassword *string        `yaml:"redisPassword"`
		RedisDB       *int           `yaml:"redisDb"`
	} `yaml:"cache"`
	Store *struct {
		Backend *string `yaml:"backend"`
		Dir     *string `yaml:"dir"`
	} `yaml:"store"`
	Log *struct {
		Level *string `yaml:"level"`
	} `yaml:"log"`
	OTEL *struct {
		Enabled     *bool    `yaml:"enabled"`
		Endpoint    *string  `yaml:"endpoint"`
		Protocol    *string  `yaml:"protocol"`
		SampleRatio *float64 `yaml:"sampleRatio"`
	} `yaml:"otel"`
}

// Defaults applied before file and environment merging.
const (
	DefaultVersionTag   = "local"
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxAttempts  = 3
	DefaultRetryDelay   = time.Second

	DefaultBackendTimeout = 15 * time.Second

	DefaultInitialPage = 1
	DefaultInitialZoom = 1.0
	DefaultRuntime     = "ws"

	DefaultListen        = ":8080"
	DefaultMetricsListen = ":9090"
	DefaultRateLimitRPM  = 120
	DefaultViewerRate    = 25.0
	DefaultViewerBurst   = 50

	DefaultCacheBackend = "none"
	DefaultCacheTTL     = 15 * time.Minute
	DefaultCacheEntries = 256

	DefaultStoreBackend = "memory"

	DefaultLogLevel = "info"

	DefaultOTELProtocol    = "grpc"
	DefaultOTELSampleRatio = 1.0
)
