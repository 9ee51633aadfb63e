// SPDX-License-Identifier: MIT

// Package assets loads the remote viewer assets a session needs before it can
// generate the embeddable document: resolution, fetching with validation,
// retry with fallback mirrors, and ordered bundle loading with progress.
package assets

import (
	"strings"
	"time"
)

// Kind classifies an asset for content validation and document generation.
type Kind string

const (
	// KindStyle is a stylesheet asset inlined into the document head.
	KindStyle Kind = "style"
	// KindBehavior is a script asset inlined into the document body.
	KindBehavior Kind = "behavior"
)

// String returns the kind name for logging.
func (k Kind) String() string {
	return string(k)
}

// Spec describes one named asset of the viewer bundle. Specs are immutable
// once a session is created.
type Spec struct {
	Name     string
	Kind     Kind
	Required bool
}

// Default asset names of the viewer bundle.
const (
	StyleAssetName    = "viewer.css"
	BehaviorAssetName = "viewer.js"
)

// DefaultBundle returns the assets every session needs, in load order:
// the stylesheet first, then the behavior script.
func DefaultBundle() []Spec {
	return []Spec{
		{Name: StyleAssetName, Kind: KindStyle, Required: true},
		{Name: BehaviorAssetName, Kind: KindBehavior, Required: true},
	}
}

// Version tags that resolve directly against the base URL, without a version
// path segment.
const (
	VersionTagLocal = "local"
	VersionTagDev   = "dev"
)

// LoadConfig carries the immutable asset loading parameters of one session.
type LoadConfig struct {
	BaseURL          string
	VersionTag       string
	FallbackBaseURLs []string
	FetchTimeout     time.Duration
	MaxAttempts      int
	RetryDelay       time.Duration
}

// Resolve maps an asset name to its full URL under the primary base URL.
// The "local" and "dev" version tags address unversioned layouts and skip the
// version path segment; every other tag becomes a segment between base URL
// and asset name.
func (c LoadConfig) Resolve(name string) string {
	return c.resolveAgainst(c.BaseURL, name)
}

func (c LoadConfig) resolveAgainst(base, name string) string {
	base = strings.TrimSuffix(base, "/")
	if c.VersionTag == VersionTagLocal || c.VersionTag == VersionTagDev {
		return base + "/" + name
	}
	return base + "/" + c.VersionTag + "/" + name
}

// Progress is one observation of bundle loading. It is re-emitted on every
// change; Err is set exactly once, on the terminal failure observation.
type Progress struct {
	Loaded       int
	Total        int
	CurrentAsset string
	Err          error
}

// Ratio returns the completion ratio in [0,1], or 0 for an empty bundle.
func (p Progress) Ratio() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Loaded) / float64(p.Total)
}
