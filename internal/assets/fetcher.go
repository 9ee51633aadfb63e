// SPDX-License-Identifier: MIT

package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foliostream/folio/internal/platform/outbound"
)

// ContentFetcher retrieves the text content of one asset URL. Implementations
// classify failures with the package sentinels so the loader can decide
// between retry and fallback.
type ContentFetcher interface {
	Fetch(ctx context.Context, rawURL string, kind Kind) (string, error)
}

// DefaultMaxAssetBytes caps the size of a fetched asset body.
const DefaultMaxAssetBytes = 8 << 20

const (
	defaultFetchTimeout = 10 * time.Second
	userAgent           = "folio"
	errorBodySnippet    = 200
)

// Accepted media types per asset kind. An empty Content-Type header is
// tolerated; anything else must match.
var contentTypesByKind = map[Kind]map[string]struct{}{
	KindStyle: {
		"text/css": {},
	},
	KindBehavior: {
		"application/javascript":   {},
		"text/javascript":          {},
		"application/x-javascript": {},
		"application/ecmascript":   {},
		"text/ecmascript":          {},
	},
}

var acceptByKind = map[Kind]string{
	KindStyle:    "text/css,*/*;q=0.1",
	KindBehavior: "application/javascript,text/javascript,*/*;q=0.1",
}

// HTTPFetcher fetches assets over HTTP with a per-request timeout, an
// outbound host policy and Content-Type validation.
type HTTPFetcher struct {
	client  *http.Client
	policy  *outbound.Policy
	timeout time.Duration
	maxBody int64
}

// NewHTTPFetcher builds a fetcher with the given per-request timeout. A nil
// policy allows every host.
func NewHTTPFetcher(timeout time.Duration, policy *outbound.Policy) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPFetcher{
		client:  &http.Client{},
		policy:  policy,
		timeout: timeout,
		maxBody: DefaultMaxAssetBytes,
	}
}

// Fetch retrieves one asset and returns its body as text. Errors are
// *FetchError except when the parent context itself is done, in which case
// the bare context error is returned so callers can tell cancellation from a
// per-request timeout.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, kind Kind) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &FetchError{Sentinel: ErrTransport, URL: rawURL, Err: err}
	}
	if f.policy != nil {
		if err := f.policy.Check(u); err != nil {
			return "", &FetchError{Sentinel: ErrHostDenied, URL: rawURL, Err: err}
		}
	}

	fctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{Sentinel: ErrTransport, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	if accept, ok := acceptByKind[kind]; ok {
		req.Header.Set("Accept", accept)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return "", f.classify(ctx, rawURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &FetchError{
			Sentinel: ErrUpstreamStatus,
			URL:      rawURL,
			Status:   res.StatusCode,
			Detail:   readSnippet(res.Body),
		}
	}

	if ct := res.Header.Get("Content-Type"); ct != "" {
		if err := checkContentType(ct, kind); err != nil {
			return "", &FetchError{Sentinel: ErrContentType, URL: rawURL, Detail: err.Error()}
		}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, f.maxBody+1))
	if err != nil {
		return "", f.classify(ctx, rawURL, err)
	}
	if int64(len(body)) > f.maxBody {
		return "", &FetchError{
			Sentinel: ErrTransport,
			URL:      rawURL,
			Detail:   fmt.Sprintf("body exceeds %d bytes", f.maxBody),
		}
	}
	return string(body), nil
}

// classify maps a transport-level failure to a sentinel. A done parent
// context wins over everything: the caller aborted, not the asset host.
func (f *HTTPFetcher) classify(ctx context.Context, rawURL string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Sentinel: ErrTimeout, URL: rawURL, Err: err}
	}
	return &FetchError{Sentinel: ErrTransport, URL: rawURL, Err: err}
}

func checkContentType(header string, kind Kind) error {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return fmt.Errorf("unparseable content type %q", header)
	}
	accepted, ok := contentTypesByKind[kind]
	if !ok {
		return nil
	}
	if _, ok := accepted[strings.ToLower(mt)]; !ok {
		return fmt.Errorf("got %q for %s asset", mt, kind)
	}
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, errorBodySnippet))
	return strings.TrimSpace(string(b))
}
