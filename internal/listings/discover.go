// File: internal/listings/discover.go
// Description: Reads the account's listing table and turns eligible rows into
// Targets. The page is the only source of truth; nothing is cached between calls.

package listings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

const defaultTableWait = 15 * time.Second

// Discoverer enumerates repostable listings on the current page.
type Discoverer struct {
	site      schemas.SiteConfig
	logger    *zap.Logger
	tableWait time.Duration
}

// NewDiscoverer creates a Discoverer. A zero tableWait uses the default.
func NewDiscoverer(site schemas.SiteConfig, logger *zap.Logger, tableWait time.Duration) *Discoverer {
	if tableWait <= 0 {
		tableWait = defaultTableWait
	}
	return &Discoverer{site: site, logger: logger.Named("listings"), tableWait: tableWait}
}

// Discover returns the Targets on the current page in page order. A missing
// listings table means there is nothing to do, not a failure.
func (d *Discoverer) Discover(ctx context.Context, driver schemas.PageDriver, filter schemas.ListingFilter) ([]schemas.Target, error) {
	if err := driver.WaitForSelector(ctx, d.site.ListingsTable, d.tableWait); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Info("No listings table found.", zap.Error(err))
		return nil, nil
	}

	rows, err := driver.LocateAll(ctx, d.site.ListingRows)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate listing rows: %w", err)
	}

	var (
		targets []schemas.Target
		posting int
	)
	for _, row := range rows {
		if !row.IsVisible(ctx, 0) || d.isHeader(ctx, row) {
			continue
		}
		posting++
		d.logger.Info("Posting row.", zap.Int("posting", posting), zap.String("text", rowText(ctx, row)))

		lr := d.readRow(ctx, row)
		if lr.Action == nil {
			d.logger.Debug("Row has no usable repost control.", zap.String("title", lr.Title))
			continue
		}
		if !Matches(filter, lr) {
			d.logger.Debug("Row filtered out.", zap.String("title", lr.Title), zap.String("status", lr.Status))
			continue
		}
		targets = append(targets, schemas.Target{ListingRow: lr})
	}

	d.logger.Info("Discovery complete.", zap.Int("rows", posting), zap.Int("targets", len(targets)))
	return targets, nil
}

func (d *Discoverer) isHeader(ctx context.Context, row schemas.Element) bool {
	if d.site.HeaderCell == "" {
		return false
	}
	cells, err := row.LocateAll(ctx, d.site.HeaderCell)
	return err == nil && len(cells) > 0
}

// readRow extracts every field independently; a field that cannot be read is left empty.
func (d *Discoverer) readRow(ctx context.Context, row schemas.Element) schemas.ListingRow {
	return schemas.ListingRow{
		PostingID: d.postingID(ctx, row),
		Title:     cellText(ctx, row, d.site.TitleCell),
		Status:    cellText(ctx, row, d.site.StatusCell),
		Action:    d.repostControl(ctx, row),
	}
}

func (d *Discoverer) postingID(ctx context.Context, row schemas.Element) string {
	if d.site.PostingIDField == "" || d.site.PostingIDAttr == "" {
		return ""
	}
	fields, err := row.LocateAll(ctx, d.site.PostingIDField)
	if err != nil {
		return ""
	}
	for _, f := range fields {
		if v, ok, err := f.Attribute(ctx, d.site.PostingIDAttr); err == nil && ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (d *Discoverer) repostControl(ctx context.Context, row schemas.Element) schemas.Element {
	controls, err := row.LocateAll(ctx, d.site.RepostControl)
	if err != nil {
		return nil
	}
	for _, c := range controls {
		if _, ok, err := c.Attribute(ctx, "disabled"); err != nil || ok {
			continue
		}
		if c.IsVisible(ctx, 0) {
			return c
		}
	}
	return nil
}

func cellText(ctx context.Context, row schemas.Element, selector string) string {
	if selector == "" {
		return ""
	}
	cells, err := row.LocateAll(ctx, selector)
	if err != nil || len(cells) == 0 {
		return ""
	}
	text, err := cells[0].InnerText(ctx)
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

func rowText(ctx context.Context, row schemas.Element) string {
	text, err := row.InnerText(ctx)
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}
