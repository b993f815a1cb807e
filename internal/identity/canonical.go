// Package identity derives the canonical site identity of a user-supplied
// website URL. Two URLs name the same site when their canonical hosts are
// equal; site-ownership verification is keyed on that host.
package identity

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/authmaker/internal/common"
)

const wwwPrefix = "www."

// Canonicalize lower-cases raw, parses it as a URL and returns its host
// with a single leading "www." removed. A port, when present, stays part
// of the host.
//
// Blank input yields "" and no error. Input with no extractable host
// (for example "example.com/path" without a scheme) yields an error
// matching common.ErrInvalidURL.
func Canonicalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	u, err := url.Parse(strings.ToLower(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", common.ErrInvalidURL, raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q: no host", common.ErrInvalidURL, raw)
	}

	return strings.TrimPrefix(u.Host, wwwPrefix), nil
}

// SameSite reports whether a and b canonicalize to the same host. Any
// parse failure is returned to the caller.
func SameSite(a, b string) (bool, error) {
	ca, err := Canonicalize(a)
	if err != nil {
		return false, err
	}
	cb, err := Canonicalize(b)
	if err != nil {
		return false, err
	}
	return ca == cb, nil
}
