// SPDX-License-Identifier: MIT

// Package backend is the client for the external page-streaming API. The
// contract is fixed: document metadata under {base}/{docId}/info and page
// images under {base}/{docId}/page/{n}. folio consumes this API, it never
// implements it.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/foliostream/folio/internal/log"
	"github.com/foliostream/folio/internal/platform/outbound"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultMaxRetries = 2
	retryBaseDelay    = 250 * time.Millisecond
	errorBodySnippet  = 200
	userAgent         = "folio"
)

// DocumentInfo is the metadata the backend reports for one document.
type DocumentInfo struct {
	PageCount int    `json:"pageCount"`
	Title     string `json:"title"`
}

// Page is one streamed page image. The caller owns Body and must close it.
type Page struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Options tune the client beyond its base URL.
type Options struct {
	// Timeout bounds every request. Zero means the default.
	Timeout time.Duration
	// MaxRetries is how often Info is retried after a transient fault.
	// Negative disables retries; zero means the default.
	MaxRetries int
	// Policy restricts which hosts the client may reach. Nil allows all.
	Policy *outbound.Policy
	// Traced wraps the transport with otelhttp so backend calls join the
	// active trace.
	Traced bool
}

// Client talks to the page-streaming backend.
type Client struct {
	base    string
	http    *http.Client
	policy  *outbound.Policy
	retries int
	logger  zerolog.Logger
}

// New builds a client for the given backend base URL.
func New(baseURL string, opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend: invalid base URL %q", baseURL)
	}
	if opts.Policy != nil {
		if err := opts.Policy.Check(u); err != nil {
			return nil, fmt.Errorf("backend: base URL rejected: %w", err)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := opts.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}
	if retries < 0 {
		retries = 0
	}

	var transport http.RoundTripper = http.DefaultTransport
	if opts.Traced {
		transport = otelhttp.NewTransport(transport)
	}

	return &Client{
		base:    base,
		http:    &http.Client{Timeout: timeout, Transport: transport},
		policy:  opts.Policy,
		retries: retries,
		logger:  log.WithComponent("backend"),
	}, nil
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.base
}

// Info fetches the metadata of one document. Transient faults (transport
// errors, 5xx) are retried a bounded number of times; 4xx is terminal.
func (c *Client) Info(ctx context.Context, docID string) (*DocumentInfo, error) {
	u := c.base + "/" + url.PathEscape(docID) + "/info"

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, c.wrap("info", docID, ctx.Err())
			case <-time.After(delay):
			}
			c.logger.Debug().
				Str(log.FieldEvent, "backend.info_retry").
				Str(log.FieldDocID, docID).
				Int(log.FieldAttempt, attempt).
				Msg("retrying document info")
		}

		info, status, err := c.fetchInfo(ctx, u, docID, attempt > 0)
		if err == nil {
			return info, nil
		}
		lastErr = err
		if !retryable(err, status) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) fetchInfo(ctx context.Context, u, docID string, isRetry bool) (*DocumentInfo, int, error) {
	start := time.Now()
	res, err := c.do(ctx, u)
	if err != nil {
		recordAttemptMetrics(http.MethodGet, "info", 0, time.Since(start), err, isRetry)
		return nil, 0, c.wrap("info", docID, err)
	}
	defer res.Body.Close()
	recordAttemptMetrics(http.MethodGet, "info", res.StatusCode, time.Since(start), nil, isRetry)

	if res.StatusCode != http.StatusOK {
		return nil, res.StatusCode, &APIError{
			Sentinel:  statusSentinel(res.StatusCode),
			Operation: "info",
			DocID:     docID,
			Status:    res.StatusCode,
			Body:      readSnippet(res.Body),
		}
	}

	var info DocumentInfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return nil, res.StatusCode, &APIError{
			Sentinel:  ErrUpstreamBadResponse,
			Operation: "info",
			DocID:     docID,
			Status:    res.StatusCode,
			Err:       err,
		}
	}
	if info.PageCount < 0 {
		return nil, res.StatusCode, &APIError{
			Sentinel:  ErrUpstreamBadResponse,
			Operation: "info",
			DocID:     docID,
			Body:      fmt.Sprintf("negative page count %d", info.PageCount),
		}
	}
	return &info, res.StatusCode, nil
}

// PageURL returns the absolute URL of one page image.
func (c *Client) PageURL(docID string, page int) string {
	return c.base + "/" + url.PathEscape(docID) + "/page/" + strconv.Itoa(page)
}

// StreamPage opens one page image for streaming. No retry: the caller is
// relaying bytes to a viewer and retrying a half-streamed body would corrupt
// the response.
func (c *Client) StreamPage(ctx context.Context, docID string, page int) (*Page, error) {
	if page < 1 {
		return nil, &APIError{
			Sentinel:  ErrNotFound,
			Operation: "page",
			DocID:     docID,
			Body:      fmt.Sprintf("page %d out of range", page),
		}
	}

	start := time.Now()
	res, err := c.do(ctx, c.PageURL(docID, page))
	if err != nil {
		recordAttemptMetrics(http.MethodGet, "page", 0, time.Since(start), err, false)
		return nil, c.wrap("page", docID, err)
	}
	recordAttemptMetrics(http.MethodGet, "page", res.StatusCode, time.Since(start), nil, false)

	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		return nil, &APIError{
			Sentinel:  statusSentinel(res.StatusCode),
			Operation: "page",
			DocID:     docID,
			Status:    res.StatusCode,
			Body:      readSnippet(res.Body),
		}
	}

	return &Page{
		Body:          res.Body,
		ContentType:   res.Header.Get("Content-Type"),
		ContentLength: res.ContentLength,
	}, nil
}

// Ping probes backend reachability for readiness checks. Any HTTP response
// counts as reachable; only transport-level faults fail the probe.
func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	res, err := c.do(ctx, c.base+"/")
	if err != nil {
		recordAttemptMetrics(http.MethodGet, "ping", 0, time.Since(start), err, false)
		return c.wrap("ping", "", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, errorBodySnippet))
	recordAttemptMetrics(http.MethodGet, "ping", res.StatusCode, time.Since(start), nil, false)
	return nil
}

func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	if c.policy != nil {
		if err := c.policy.CheckURL(rawURL); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, image/*")
	return c.http.Do(req)
}

// wrap classifies a transport-level failure into an *APIError. Errors that
// already carry a sentinel pass through unchanged.
func (c *Client) wrap(op, docID string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}

	sentinel := ErrUpstreamUnavailable
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		sentinel = ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		sentinel = ErrTimeout
	case errors.Is(err, context.Canceled):
		// Not an upstream fault; surface the caller's cancellation as-is.
		return err
	}

	return &APIError{
		Sentinel:  sentinel,
		Operation: op,
		DocID:     docID,
		Err:       err,
	}
}

// retryable reports whether another Info attempt could succeed.
func retryable(err error, status int) bool {
	if status >= 400 && status < 500 {
		return false
	}
	if errors.Is(err, ErrUpstreamBadResponse) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrUpstreamError)
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, errorBodySnippet))
	return strings.TrimSpace(string(b))
}
