// Package canonical normalizes URLs into the deduplication key form and
// derives the set of equivalent variants used for duplicate detection.
package canonical

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/perchlink/perch/internal/bookmarks"
)

// Query parameters that never change page identity and are stripped outright.
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref_src": {},
	"igshid":  {},
}

// Canonicalize standardizes a URL so equivalent submissions map to one key.
// It lowercases the scheme and host, strips a leading "www.", removes default
// ports and fragments, drops known tracking query parameters, re-encodes the
// remaining query in sorted order, and trims the trailing slash on non-root
// paths. Canonicalizing an already-canonical URL returns the same string.
func Canonicalize(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", bookmarks.ErrInvalidURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", bookmarks.ErrInvalidURL, err)
	}
	if u.Host == "" {
		return "", bookmarks.ErrInvalidURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimPrefix(u.Host, "www.")

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
	u.RawQuery = encodeSorted(q)

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	if u.Path == "/" && u.RawQuery == "" {
		u.Path = ""
	}

	return u.String(), nil
}

// Variants returns the URL forms considered equivalent to a canonical URL for
// duplicate detection: the http/https and www/non-www cross product. It is
// total; on parse failure or non-http(s) schemes it degrades to the single
// input as its own variant set.
func Variants(canonicalURL string) []string {
	u, err := url.Parse(canonicalURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return []string{canonicalURL}
	}

	bareHost := strings.TrimPrefix(u.Host, "www.")
	hosts := []string{bareHost, "www." + bareHost}
	schemes := []string{"https", "http"}

	seen := make(map[string]struct{}, len(hosts)*len(schemes)+1)
	out := make([]string, 0, len(hosts)*len(schemes)+1)
	add := func(s string) {
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	add(canonicalURL)
	for _, scheme := range schemes {
		for _, host := range hosts {
			v := *u
			v.Scheme = scheme
			v.Host = host
			add(v.String())
		}
	}
	return out
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	_, ok := trackingParams[lower]
	return ok
}

// encodeSorted renders query values with sorted keys so canonicalization is
// deterministic. url.Values.Encode already sorts keys; this keeps repeated
// values in their original order.
func encodeSorted(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
