// SPDX-License-Identifier: MIT

// foliod is the folio daemon: it serves the session management API, the
// public viewer surface and the Prometheus metrics endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/foliostream/folio/internal/api"
	"github.com/foliostream/folio/internal/assets"
	"github.com/foliostream/folio/internal/backend"
	"github.com/foliostream/folio/internal/bridge"
	"github.com/foliostream/folio/internal/cache"
	"github.com/foliostream/folio/internal/config"
	"github.com/foliostream/folio/internal/daemon"
	"github.com/foliostream/folio/internal/health"
	"github.com/foliostream/folio/internal/log"
	"github.com/foliostream/folio/internal/platform/outbound"
	"github.com/foliostream/folio/internal/sandbox"
	"github.com/foliostream/folio/internal/session"
	"github.com/foliostream/folio/internal/session/store"
	"github.com/foliostream/folio/internal/telemetry"
)

var (
	version   = "v0.4.0"
	commit    = "none"
	buildDate = "unknown"
)

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheckCLI(os.Args[2:]))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	log.Configure(log.Config{Service: "folio"})
	logger := log.WithComponent("daemon")

	// Create a context that listens for the interrupt signal from the OS
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration with precedence: ENV > File > Defaults
	loader := config.NewLoader(*configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	// The logger exists before the config does; apply the configured level now.
	if cfg.Log.Level != "" {
		if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	}

	if *configPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", *configPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	// Pre-flight checks (fail fast)
	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.Server.Listen).
		Msg("starting folio")

	// Log key configuration
	logger.Info().Msgf("→ Backend: %s", maskURL(cfg.Backend.BaseURL))
	logger.Info().Msgf("→ Assets: %s (tag: %s, fallbacks: %d)", maskURL(cfg.Assets.BaseURL), cfg.Assets.VersionTag, len(cfg.Assets.FallbackBaseURLs))
	logger.Info().Msgf("→ Store: %s", cfg.Store.Backend)
	logger.Info().Msgf("→ Cache: %s", cfg.Cache.Backend)
	logger.Info().Msgf("→ Session runtime: %s", cfg.Session.Runtime)
	if cfg.Server.APIToken != "" {
		logger.Info().Msg("→ API token: configured")
	} else {
		logger.Warn().
			Str("security", "fail_closed").
			Msg("→ API token: NOT configured. Management API refuses all requests until FOLIO_API_TOKEN is set.")
	}

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTEL.Enabled,
		ServiceName:    "folio",
		ServiceVersion: version,
		Environment:    os.Getenv("FOLIO_ENV"),
		Protocol:       cfg.OTEL.Protocol,
		Endpoint:       cfg.OTEL.Endpoint,
		SampleRatio:    cfg.OTEL.SampleRatio,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "telemetry.init_failed").
			Msg("failed to initialize tracing")
	}

	assetCache, err := cache.New(cache.Config{
		Backend:       cfg.Cache.Backend,
		MaxEntries:    cfg.Cache.MaxEntries,
		Dir:           cfg.Cache.Dir,
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
	}, log.WithComponent("cache"))
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "cache.init_failed").
			Msg("failed to initialize asset cache")
	}

	history, err := store.Open(cfg.Store.Backend, cfg.Store.Dir)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "store.open_failed").
			Msg("failed to open session store")
	}

	// One allowlist guards every outbound URL: asset mirrors and the backend.
	policy, err := outbound.NewPolicy(cfg.Assets.AllowedHosts)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "outbound.allowlist_invalid").
			Msg("invalid outbound host allowlist")
	}

	backendClient, err := backend.New(cfg.Backend.BaseURL, backend.Options{
		Timeout: cfg.Backend.Timeout,
		Policy:  policy,
		Traced:  cfg.OTEL.Enabled,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "backend.init_failed").
			Msg("failed to build backend client")
	}

	// Hot reload support: watch config file and allow SIGHUP-triggered reload.
	holder := config.NewHolder(cfg, loader, *configPath)

	registry := session.NewRegistry()

	// Each session gets its own loader built from the current config snapshot,
	// so reloaded asset URLs apply to new sessions. The cache is shared.
	factory := func(req api.CreateSessionRequest) (*session.Controller, error) {
		current := holder.Get()
		id := uuid.NewString()

		loadCfg := assets.LoadConfig{
			BaseURL:          current.Assets.BaseURL,
			VersionTag:       current.Assets.VersionTag,
			FallbackBaseURLs: current.Assets.FallbackBaseURLs,
			FetchTimeout:     current.Assets.FetchTimeout,
			MaxAttempts:      current.Assets.MaxAttempts,
			RetryDelay:       current.Assets.RetryDelay,
		}
		assetLoader := assets.NewLoader(loadCfg, assets.NewHTTPFetcher(current.Assets.FetchTimeout, policy))
		assetLoader.SetCache(assetCache, current.Cache.TTL)
		bundle := assets.NewBundle(assetLoader, nil)

		initialPage := req.InitialPage
		if initialPage == 0 {
			initialPage = current.Session.InitialPage
		}
		initialZoom := req.InitialZoom
		if initialZoom == 0 {
			initialZoom = current.Session.InitialZoom
		}

		ctl, err := session.New(session.Config{
			SessionID:   id,
			DocID:       req.DocID,
			APIBaseURL:  backendClient.BaseURL(),
			Title:       req.Title,
			InitialPage: initialPage,
			InitialZoom: initialZoom,
			BridgePath:  "/viewer/" + id + "/bridge",
			PagePath:    "/viewer/" + id + "/page",
			Assets:      loadCfg,
		}, session.Deps{
			Bundle:  bundle,
			Bridge:  bridge.New(log.WithComponent("bridge").With().Str("session_id", id).Logger()),
			History: history,
		})
		if err != nil {
			return nil, err
		}

		if current.Session.Runtime == "sandbox" {
			// Subscribe before Initialize can run, the loading_document
			// update must not be missed.
			updates, stopUpdates := ctl.Events()
			go runSandbox(ctx, ctl, bundle, updates, stopUpdates)
		}
		return ctl, nil
	}

	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.NewBackendChecker(backendClient, 5*time.Second))
	healthMgr.RegisterChecker(health.NewStoreChecker(history))
	if cfg.Store.Backend == "sqlite" {
		healthMgr.RegisterChecker(health.NewSQLiteChecker(store.SQLitePath(cfg.Store.Dir)))
	}
	if cfg.Store.Dir != "" {
		healthMgr.RegisterChecker(health.NewDirChecker("store_dir", cfg.Store.Dir))
	}
	if cfg.Cache.Backend == cache.BackendDisk && cfg.Cache.Dir != "" {
		healthMgr.RegisterChecker(health.NewDirChecker("cache_dir", cfg.Cache.Dir))
	}

	srv, err := api.New(cfg, api.Deps{
		Registry: registry,
		Factory:  factory,
		Backend:  backendClient,
		History:  history,
		Health:   healthMgr,
		Holder:   holder,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "api.init_failed").
			Msg("failed to build API server")
	}

	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{
		Logger:         logger,
		APIHandler:     srv.Routes(),
		MetricsHandler: promhttp.Handler(),
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.init_failed").
			Msg("failed to create daemon manager")
	}

	// Hooks run LIFO, so register in dependency order: sessions drain first,
	// telemetry flushes last.
	mgr.RegisterShutdownHook("telemetry", func(ctx context.Context) error {
		return tel.Shutdown(ctx)
	})
	mgr.RegisterShutdownHook("config-watcher", func(context.Context) error {
		holder.Stop()
		return nil
	})
	mgr.RegisterShutdownHook("asset-cache", func(context.Context) error {
		return assetCache.Close()
	})
	mgr.RegisterShutdownHook("history-store", func(context.Context) error {
		return history.Close()
	})
	mgr.RegisterShutdownHook("sessions", func(context.Context) error {
		registry.Shutdown()
		return nil
	})

	app := daemon.NewApp(logger, mgr, holder)
	if err := app.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon app failed")
	}

	logger.Info().Msg("server exiting")
}

// runSandbox drives the embedded viewer runtime for one session: it waits
// until assets are loaded, runs the behavior script in a VM and attaches the
// VM transport to the session bridge. Returns when the session is disposed.
func runSandbox(ctx context.Context, ctl *session.Controller, bundle *assets.Bundle, updates <-chan session.Update, stop func()) {
	defer stop()
	logger := log.WithComponent("sandbox").With().Str("session_id", ctl.ID()).Logger()

	var host *sandbox.Host
	defer func() {
		if host != nil {
			_ = host.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return // session disposed
			}
			if host != nil || u.State != session.StateLoadingDocument {
				continue
			}

			script, found := bundle.Content(assets.BehaviorAssetName)
			if !found {
				logger.Error().
					Str("event", "sandbox.script_missing").
					Msg("behavior asset missing from loaded bundle")
				continue
			}

			h, err := sandbox.New()
			if err != nil {
				logger.Error().
					Err(err).
					Str("event", "sandbox.start_failed").
					Msg("failed to create sandbox host")
				return
			}
			host = h
			host.OnEvent(ctl.HandleInbound)
			go func() {
				err := host.Run(ctx, script)
				if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, sandbox.ErrClosed) {
					logger.Error().
						Err(err).
						Str("event", "sandbox.run_failed").
						Msg("viewer script terminated")
				}
			}()
			// Attaching replays LOAD_DOCUMENT; the host queues it until the
			// script has registered its handler.
			ctl.AttachRuntime(host.Transport())
		}
	}
}
