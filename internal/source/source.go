// Package source resolves a configured source URI into an ordered list of
// lazy byte-stream openers, uniform across local paths, glob patterns, and
// the three supported object-store schemes. It never reads file contents
// itself — only Open does that, and only when a worker asks for it — so
// listing stays cheap regardless of how many files a run will touch.
package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/nishad/eudravigilance/internal/icsrerrors"
)

// Opener lazily provides read access to one byte stream. The identity of
// the stream (Name) is stable across calls and is used both for hashing
// and for quarantine destinations.
type Opener interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}

// Backend lists the openers reachable under one URI scheme.
type Backend interface {
	// List resolves uri (which may include a glob pattern for local
	// backends) into an ordered slice of Openers. It performs no file
	// reads; only enough metadata listing to enumerate candidates.
	List(ctx context.Context, uri string) ([]Opener, error)
}

// Factory constructs a Backend for a given URI scheme.
type Factory func() Backend

var registry = map[string]Factory{}

// Register adds a backend factory under a URI scheme (e.g. "s3", "gs",
// "az", ""). Registration is open: additional backends can be contributed
// by calling Register from an init() func without modifying this package.
func Register(scheme string, f Factory) {
	registry[scheme] = f
}

// schemeOf extracts the URI scheme, defaulting to "" (local) for bare
// paths and globs that contain no "://".
func schemeOf(uri string) string {
	if idx := strings.Index(uri, "://"); idx >= 0 {
		return uri[:idx]
	}
	return ""
}

// List resolves a source URI into an ordered list of Openers by
// dispatching to the registered backend for its scheme. Returns
// SourceUnavailable-kind errors for listing failures, per spec.
func List(ctx context.Context, uri string) ([]Opener, error) {
	scheme := schemeOf(uri)
	factory, ok := registry[scheme]
	if !ok {
		return nil, icsrerrors.E(icsrerrors.Op("source.List"), icsrerrors.KindSourceUnavailable,
			fmt.Sprintf("no backend registered for scheme %q (uri %q)", scheme, uri))
	}

	openers, err := factory().List(ctx, uri)
	if err != nil {
		return nil, icsrerrors.Wrap(icsrerrors.Op("source.List"), icsrerrors.KindSourceUnavailable, err)
	}
	return openers, nil
}

// ParseObjectURI splits a scheme://bucket/prefix URI into its bucket and
// key-prefix components, shared by the s3/gs/az backends.
func ParseObjectURI(uri string) (bucket, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid object URI %q: %w", uri, err)
	}
	bucket = u.Host
	prefix = strings.TrimPrefix(u.Path, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid object URI %q: missing bucket", uri)
	}
	return bucket, prefix, nil
}
