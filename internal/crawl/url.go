package crawl

import (
	"fmt"
	"net/url"
	"strings"
)

// trackingParams are query parameters stripped during normalization, matched
// case-insensitively. utm_* parameters are stripped by prefix.
var trackingParams = map[string]struct{}{
	"gclid":  {},
	"fbclid": {},
}

// NormalizeURL canonicalizes a raw URL so equivalent URLs collide in storage.
// It lowercases the scheme and host, removes default ports, strips the
// fragment and tracking parameters, sorts the remaining query parameters, and
// trims a trailing slash from any path except the root. Path case is
// preserved. The function is idempotent.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if isTrackingParam(key) {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.ForceQuery = false

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = ""
	}

	return u.String(), nil
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	_, ok := trackingParams[lower]
	return ok
}
