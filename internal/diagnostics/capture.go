// File: internal/diagnostics/capture.go
// Description: Best-effort artifact capture. Nothing in here is allowed to
// fail a run; every problem is folded into the returned Diagnostics.

package diagnostics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

// TagFinal marks the end-of-run capture, stored under the well-known keys.
const TagFinal = "final"

const defaultCaptureTimeout = 20 * time.Second

// Capturer stores a screenshot and the page HTML, then digests the HTML.
type Capturer struct {
	store   schemas.KeyValueStore
	site    schemas.SiteConfig
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewCapturer creates a Capturer writing to store.
func NewCapturer(store schemas.KeyValueStore, site schemas.SiteConfig, logger *zap.Logger) *Capturer {
	return &Capturer{
		store:   store,
		site:    site,
		logger:  logger.Named("diagnostics"),
		timeout: defaultCaptureTimeout,
		now:     time.Now,
	}
}

// Keys returns the screenshot and HTML keys used for tag.
func Keys(tag string) (screenshot, html string) {
	if tag == TagFinal {
		return schemas.KeyLoginShot, schemas.KeyPageHTML
	}
	return tag + ".png", tag + ".html"
}

// Capture records the current page. It runs detached from ctx's cancellation
// so the state of an interrupted run can still be captured.
func (c *Capturer) Capture(ctx context.Context, driver schemas.PageDriver, tag string) schemas.Diagnostics {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	d := schemas.Diagnostics{Tag: tag, CapturedAt: c.now().UTC()}
	shotKey, htmlKey := Keys(tag)

	if shot, err := driver.Screenshot(ctx, true); err != nil {
		c.fail(&d, "screenshot", err)
	} else if err := c.store.SetValue(ctx, shotKey, shot, schemas.ContentTypePNG); err != nil {
		c.fail(&d, "store screenshot", err)
	} else {
		d.ScreenshotKey = shotKey
	}

	html, err := driver.Content(ctx)
	if err != nil {
		c.fail(&d, "page content", err)
		return d
	}
	if err := c.store.SetValue(ctx, htmlKey, []byte(html), schemas.ContentTypeHTML); err != nil {
		c.fail(&d, "store page content", err)
	} else {
		d.HTMLKey = htmlKey
	}
	if err := c.digest(html, &d); err != nil {
		c.fail(&d, "digest", err)
	}

	c.logger.Info("Diagnostics captured.",
		zap.String("tag", tag),
		zap.String("title", d.PageTitle),
		zap.Int("table_rows", d.TableRows),
		zap.Bool("marker_present", d.MarkerPresent),
		zap.Int("errors", len(d.Errors)))
	return d
}

// digest extracts a structural summary of the page.
func (c *Capturer) digest(html string, d *schemas.Diagnostics) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	d.PageTitle = strings.TrimSpace(doc.Find("title").First().Text())
	if c.site.ListingRows != "" {
		d.TableRows = doc.Find(c.site.ListingRows).Length()
	}
	if c.site.AuthenticatedMarker != "" {
		d.MarkerPresent = doc.Find(c.site.AuthenticatedMarker).Length() > 0
	}
	return nil
}

func (c *Capturer) fail(d *schemas.Diagnostics, step string, err error) {
	re := schemas.NewRunError(schemas.ErrCodeCaptureFailed, err, "%s failed", step)
	d.Errors = append(d.Errors, fmt.Sprintf("%s: %v", step, err))
	c.logger.Warn("Diagnostics capture step failed.", zap.String("tag", d.Tag), zap.Error(re))
}
