// internal/browser/driver.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

const defaultActionTimeout = 15 * time.Second

// Ensure Session implements the interface.
var _ schemas.PageDriver = (*Session)(nil)

// Goto navigates the tab and waits for the requested load state.
func (s *Session) Goto(ctx context.Context, url string, until schemas.WaitCondition, timeout time.Duration) error {
	s.logger.Debug("Navigating to URL", zap.String("url", url), zap.String("until", string(until)))

	navCtx, cancel := s.op(ctx, timeout)
	defer cancel()

	var action chromedp.Action
	switch until {
	case schemas.WaitDOMContentLoaded:
		action = chromedp.Tasks{
			chromedp.ActionFunc(func(ctx context.Context) error {
				_, _, errText, _, err := page.Navigate(url).Do(ctx)
				if err != nil {
					return err
				}
				if errText != "" {
					return fmt.Errorf("page load error %s", errText)
				}
				return nil
			}),
			chromedp.WaitReady("body", chromedp.ByQuery),
		}
	default:
		action = chromedp.Navigate(url)
	}

	if err := chromedp.Run(navCtx, action); err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigation to %s timed out after %s: %w", url, timeout, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// WaitForSelector blocks until an element matching selector is visible.
func (s *Session) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := s.op(ctx, timeout)
	defer cancel()

	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("selector %q not visible within %s: %w", selector, timeout, err)
	}
	return nil
}

// LocateAll returns handles to every element matching selector, possibly none.
func (s *Session) LocateAll(ctx context.Context, selector string) ([]schemas.Element, error) {
	return s.locate(ctx, selector, nil)
}

func (s *Session) locate(ctx context.Context, selector string, from *cdp.Node) ([]schemas.Element, error) {
	opCtx, cancel := s.op(ctx, defaultActionTimeout)
	defer cancel()

	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if from != nil {
		opts = append(opts, chromedp.FromNode(from))
	}

	var nodes []*cdp.Node
	if err := chromedp.Run(opCtx, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("locating %q: %w", selector, err)
	}

	elements := make([]schemas.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &nodeElement{session: s, node: n})
	}
	return elements, nil
}

// Fill replaces the value of an input.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	opCtx, cancel := s.op(ctx, defaultActionTimeout)
	defer cancel()

	err := chromedp.Run(opCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill failed for selector %q: %w", selector, err)
	}
	return nil
}

// Press sends a single named key to the element matching selector.
func (s *Session) Press(ctx context.Context, selector, key string) error {
	opCtx, cancel := s.op(ctx, defaultActionTimeout)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.SendKeys(selector, keyFor(key), chromedp.ByQuery)); err != nil {
		return fmt.Errorf("press %q failed for selector %q: %w", key, selector, err)
	}
	return nil
}

// keyFor maps the key names used by callers to chromedp key codes.
func keyFor(key string) string {
	switch key {
	case "Enter":
		return kb.Enter
	case "Tab":
		return kb.Tab
	case "Escape":
		return kb.Escape
	default:
		return key
	}
}

// Screenshot captures the viewport, or the whole page as PNG when fullPage is set.
func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	opCtx, cancel := s.op(ctx, defaultActionTimeout)
	defer cancel()

	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		// Quality 100 keeps the capture in PNG.
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := chromedp.Run(opCtx, action); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// Content returns the serialized DOM of the current page.
func (s *Session) Content(ctx context.Context) (string, error) {
	opCtx, cancel := s.op(ctx, defaultActionTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading page content: %w", err)
	}
	return html, nil
}

// URL returns the tab's current location.
func (s *Session) URL(ctx context.Context) (string, error) {
	opCtx, cancel := s.op(ctx, defaultActionTimeout)
	defer cancel()

	var loc string
	if err := chromedp.Run(opCtx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return loc, nil
}

// Cookies returns every cookie of the browser context.
func (s *Session) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	opCtx, cancel := s.op(ctx, defaultActionTimeout)
	defer cancel()

	var raw []*network.Cookie
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}
	return fromNetworkCookies(raw), nil
}

// AddCookies injects cookies into the browser context.
func (s *Session) AddCookies(ctx context.Context, cookies []schemas.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	opCtx, cancel := s.op(ctx, defaultActionTimeout)
	defer cancel()

	params := toCookieParams(cookies, time.Now())
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("injecting %d cookies: %w", len(params), err)
	}
	s.logger.Debug("Cookies injected.", zap.Int("count", len(params)))
	return nil
}
