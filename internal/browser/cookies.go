package browser

import (
	"math"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

func fromNetworkCookies(raw []*network.Cookie) []schemas.Cookie {
	cookies := make([]schemas.Cookie, 0, len(raw))
	for _, c := range raw {
		if c == nil {
			continue
		}
		out := schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		}
		// Session cookies report a negative or zero expiry.
		if !c.Session && c.Expires > 0 {
			out.Expires = c.Expires
		}
		cookies = append(cookies, out)
	}
	return cookies
}

// toCookieParams converts stored cookies for injection. Cookies that already
// expired are dropped; the rest keep their expiry.
func toCookieParams(cookies []schemas.Cookie, now time.Time) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			exp := time.Unix(int64(sec), int64(frac*float64(time.Second)))
			if !exp.After(now) {
				continue
			}
			ts := cdp.TimeSinceEpoch(exp)
			p.Expires = &ts
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			p.SameSite = network.CookieSameSiteStrict
		case "lax":
			p.SameSite = network.CookieSameSiteLax
		case "none":
			p.SameSite = network.CookieSameSiteNone
		}
		params = append(params, p)
	}
	return params
}
