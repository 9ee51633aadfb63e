// SPDX-License-Identifier: MIT

// Package outbound restricts which hosts the daemon may fetch viewer assets
// and document data from.
package outbound

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ErrHostNotAllowed indicates the URL host did not match the allowlist.
var ErrHostNotAllowed = errors.New("outbound host not allowed")

// Policy is a host allowlist for outbound HTTP(S) requests. A nil Policy or
// one built from an empty host list allows every host.
type Policy struct {
	allowed map[string]struct{}
}

// NewPolicy builds a policy from the configured host list. Hosts are
// normalized (IDNA, trailing dot, case) at construction so later checks are
// cheap string lookups.
func NewPolicy(hosts []string) (*Policy, error) {
	if len(hosts) == 0 {
		return &Policy{}, nil
	}
	allowed := make(map[string]struct{}, len(hosts))
	for _, host := range hosts {
		normalized, err := NormalizeHost(host)
		if err != nil {
			return nil, fmt.Errorf("allowlist entry %q: %w", host, err)
		}
		allowed[normalized] = struct{}{}
	}
	return &Policy{allowed: allowed}, nil
}

// Check verifies the URL host against the allowlist.
func (p *Policy) Check(u *url.URL) error {
	if p == nil || len(p.allowed) == 0 {
		return nil
	}
	if u == nil || u.Host == "" {
		return fmt.Errorf("missing url host")
	}
	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		return err
	}
	if _, ok := p.allowed[host]; !ok {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	return nil
}

// CheckURL parses raw and verifies its host against the allowlist.
func (p *Policy) CheckURL(raw string) error {
	if p == nil || len(p.allowed) == 0 {
		return nil
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	return p.Check(u)
}

// NormalizeHost validates and normalizes a host for comparison.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if strings.Contains(host, "://") {
		return "", fmt.Errorf("host must not include scheme: %s", raw)
	}
	if strings.Contains(host, "/") {
		return "", fmt.Errorf("host must not include path: %s", raw)
	}
	if strings.Contains(host, "@") {
		return "", fmt.Errorf("host must not include userinfo: %s", raw)
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return "", fmt.Errorf("host must not include port: %s", raw)
	}
	if strings.Contains(host, "%") {
		return "", fmt.Errorf("host must not include zone: %s", raw)
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}
