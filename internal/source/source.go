// Package source turns the media locations accepted on the command line into
// URIs that a playbin element can open.
//
// A location is always paired with an Origin that says how to interpret it:
// as a path on the local filesystem, or as an HTTP(S) URL that is passed
// through as-is.
package source

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Origin represents where a piece of media is read from.
type Origin string

// The following are the normalized Origin values.
const (
	// OriginFile may optionally be spelled in any letter case on the command
	// line, and will be normalized to this value.
	OriginFile Origin = "file"
	OriginHTTP Origin = "http"
)

// Origins lists every valid Origin, in the order they are presented to users.
var Origins = []Origin{OriginFile, OriginHTTP}

const fileScheme = "file://"

// ParseOrigin parses an Origin from its command line name.
func ParseOrigin(s string) (Origin, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file":
		return OriginFile, nil
	case "http":
		return OriginHTTP, nil
	}
	return Origin(""), fmt.Errorf("unknown media origin %q", s)
}

// FormatURI builds the playbin URI for a location of the given origin.
//
// File locations gain a file:// prefix, with relative paths made absolute
// first since playbin will not resolve them. Locations that already carry the
// prefix are kept. HTTP locations must be absolute http or https URLs.
func FormatURI(origin Origin, location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("empty %s location", origin)
	}

	switch origin {
	case OriginFile:
		if strings.HasPrefix(location, fileScheme) {
			return location, nil
		}
		abs, err := filepath.Abs(location)
		if err != nil {
			return "", fmt.Errorf("resolving %q: %w", location, err)
		}
		return fileScheme + abs, nil

	case OriginHTTP:
		u, err := url.Parse(location)
		if err != nil {
			return "", fmt.Errorf("invalid http location %q: %w", location, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", fmt.Errorf("http location %q must be an absolute http(s) URL", location)
		}
		return location, nil
	}

	return "", fmt.Errorf("unknown media origin %q", origin)
}
