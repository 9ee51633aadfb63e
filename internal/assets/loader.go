// SPDX-License-Identifier: MIT

package assets

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/foliostream/folio/internal/log"
	"github.com/foliostream/folio/internal/metrics"
	"github.com/foliostream/folio/internal/telemetry"
)

// ContentCache is the read-through tier in front of the fetcher. Satisfied by
// the cache package engines.
type ContentCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
}

// Loader fetches single assets with retry against the primary URL and
// one-shot fallback mirrors. Concurrent loads of the same URL are collapsed
// into one flight; a shared cache, when configured, short-circuits the fetch
// entirely. A Loader is safe for concurrent use.
type Loader struct {
	cfg      LoadConfig
	fetcher  ContentFetcher
	cache    ContentCache
	cacheTTL time.Duration
	group    singleflight.Group
	logger   zerolog.Logger

	// sleep waits between primary attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLoader builds a loader for the given config and fetcher.
func NewLoader(cfg LoadConfig, fetcher ContentFetcher) *Loader {
	return &Loader{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  log.WithComponent("assets"),
		sleep:   sleepContext,
	}
}

// SetCache attaches a read-through cache. Must be called before the first
// Load.
func (l *Loader) SetCache(c ContentCache, ttl time.Duration) {
	l.cache = c
	l.cacheTTL = ttl
}

// Config returns the loader's immutable load configuration.
func (l *Loader) Config() LoadConfig {
	return l.cfg
}

// Load retrieves one asset. The happy path is cache, then a shared flight
// with every other caller of the same URL. The flight itself is detached from
// the caller's context: a caller that gives up abandons the result, while the
// flight runs to its bounded completion and seeds the cache for the next
// session.
func (l *Loader) Load(ctx context.Context, spec Spec) (string, error) {
	key := l.cfg.Resolve(spec.Name)
	if l.cache != nil {
		if b, ok := l.cache.Get(key); ok {
			metrics.IncAssetCache(true)
			return string(b), nil
		}
		metrics.IncAssetCache(false)
	}

	ch := l.group.DoChan(key, func() (any, error) {
		content, err := l.loadDirect(context.WithoutCancel(ctx), spec)
		if err == nil && l.cache != nil {
			l.cache.Set(key, []byte(content), l.cacheTTL)
		}
		return content, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// loadDirect runs the full attempt sequence for one asset: every primary
// attempt with growing waits in between, then each fallback mirror once with
// no waits. The first success wins.
func (l *Loader) loadDirect(ctx context.Context, spec Spec) (string, error) {
	tracer := telemetry.Tracer("folio.assets")
	ctx, span := tracer.Start(ctx, "folio.assets.load", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	primary := l.cfg.Resolve(spec.Name)
	maxAttempts := l.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := l.cfg.RetryDelay * time.Duration(attempt-1)
			metrics.IncAssetRetry(spec.Name)
			l.logger.Debug().
				Str(log.FieldEvent, "assets.retry_wait").
				Str(log.FieldAsset, spec.Name).
				Int(log.FieldAttempt, attempt).
				Dur("delay", delay).
				Msg("waiting before retry")
			if err := l.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		content, err := l.fetchOnce(ctx, spec, primary)
		if err == nil {
			span.SetAttributes(telemetry.AssetAttributes(spec.Name, spec.Kind.String(), primary, attempt, false)...)
			span.SetStatus(codes.Ok, "")
			l.logger.Debug().
				Str(log.FieldEvent, "assets.fetched").
				Str(log.FieldAsset, spec.Name).
				Int(log.FieldAttempt, attempt).
				Str(log.FieldURL, primary).
				Msg("asset fetched")
			return content, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		l.logger.Warn().
			Str(log.FieldEvent, "assets.fetch_failed").
			Str(log.FieldAsset, spec.Name).
			Int(log.FieldAttempt, attempt).
			Str(log.FieldURL, primary).
			Err(err).
			Msg("asset fetch attempt failed")
	}

	fallbacksTried := 0
	for _, base := range l.cfg.FallbackBaseURLs {
		u := l.cfg.resolveAgainst(base, spec.Name)
		fallbacksTried++
		metrics.IncAssetFallback(spec.Name)

		content, err := l.fetchOnce(ctx, spec, u)
		if err == nil {
			span.SetAttributes(telemetry.AssetAttributes(spec.Name, spec.Kind.String(), u, maxAttempts, true)...)
			span.SetStatus(codes.Ok, "")
			l.logger.Info().
				Str(log.FieldEvent, "assets.fallback_recovered").
				Str(log.FieldAsset, spec.Name).
				Str(log.FieldBaseURL, base).
				Str(log.FieldURL, u).
				Msg("asset recovered from fallback")
			return content, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		l.logger.Warn().
			Str(log.FieldEvent, "assets.fallback_failed").
			Str(log.FieldAsset, spec.Name).
			Str(log.FieldBaseURL, base).
			Str(log.FieldURL, u).
			Err(err).
			Msg("fallback fetch failed")
	}

	metrics.IncAssetLoadFailure(spec.Name)
	failure := &LoadFailure{
		Asset:          spec.Name,
		Attempts:       maxAttempts,
		FallbacksTried: fallbacksTried,
		Cause:          lastErr,
	}
	span.SetAttributes(telemetry.AssetAttributes(spec.Name, spec.Kind.String(), primary, maxAttempts, fallbacksTried > 0)...)
	span.RecordError(failure)
	span.SetStatus(codes.Error, "load exhausted")
	l.logger.Error().
		Str(log.FieldEvent, "assets.load_exhausted").
		Str(log.FieldAsset, spec.Name).
		Int(log.FieldAttempt, maxAttempts).
		Int(log.FieldFallback, fallbacksTried).
		Err(failure).
		Msg("asset load exhausted all attempts and fallbacks")
	return "", failure
}

func (l *Loader) fetchOnce(ctx context.Context, spec Spec, url string) (string, error) {
	start := time.Now()
	content, err := l.fetcher.Fetch(ctx, url, spec.Kind)
	metrics.ObserveAssetFetch(spec.Name, time.Since(start))
	metrics.IncAssetFetch(spec.Name, fetchResult(err))
	return content, err
}

func fetchResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstreamStatus):
		return "upstream_status"
	case errors.Is(err, ErrContentType):
		return "content_type"
	case errors.Is(err, ErrHostDenied):
		return "host_denied"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
