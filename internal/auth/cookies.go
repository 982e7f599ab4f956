// File: internal/auth/cookies.go
package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

// registrableDomain returns the eTLD+1 of rawURL's host.
func registrableDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return publicsuffix.EffectiveTLDPlusOne(host)
}

// scopeCookies keeps only cookies that belong to domain or one of its subdomains.
func scopeCookies(cookies []schemas.Cookie, domain string) []schemas.Cookie {
	out := make([]schemas.Cookie, 0, len(cookies))
	for _, c := range cookies {
		d := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
		if d == domain || strings.HasSuffix(d, "."+domain) {
			out = append(out, c)
		}
	}
	return out
}

// liveCookies drops cookies that expired before now. Session cookies
// (no expiry) are kept.
func liveCookies(cookies []schemas.Cookie, now time.Time) []schemas.Cookie {
	out := make([]schemas.Cookie, 0, len(cookies))
	cutoff := float64(now.UnixNano()) / float64(time.Second)
	for _, c := range cookies {
		if c.Expires > 0 && c.Expires <= cutoff {
			continue
		}
		out = append(out, c)
	}
	return out
}

func loadCookies(ctx context.Context, store schemas.KeyValueStore) ([]schemas.Cookie, error) {
	raw, ok, err := store.GetValue(ctx, schemas.KeyCookies)
	if err != nil {
		return nil, fmt.Errorf("reading stored cookies: %w", err)
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var cookies []schemas.Cookie
	if err := json.Unmarshal(raw, &cookies); err != nil {
		return nil, fmt.Errorf("decoding stored cookies: %w", err)
	}
	return cookies, nil
}

func saveCookies(ctx context.Context, store schemas.KeyValueStore, cookies []schemas.Cookie) error {
	raw, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("encoding cookies: %w", err)
	}
	if err := store.SetValue(ctx, schemas.KeyCookies, raw, schemas.ContentTypeJSON); err != nil {
		return fmt.Errorf("writing cookies: %w", err)
	}
	return nil
}
