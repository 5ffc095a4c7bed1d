package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveURL makes ref absolute against base. Absolute refs are returned
// unchanged apart from a dropped fragment.
func ResolveURL(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty url", ErrExtraction)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: parse url %q: %v", ErrExtraction, ref, err)
	}
	if !refURL.IsAbs() {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse base url %q: %w", base, err)
		}
		refURL = baseURL.ResolveReference(refURL)
	}
	refURL.Fragment = ""
	return refURL.String(), nil
}
