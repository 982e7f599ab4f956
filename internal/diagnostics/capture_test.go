package diagnostics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/relist-cli/api/schemas"
	"github.com/xkilldash9x/relist-cli/internal/mocks"
)

var site = schemas.SiteConfig{
	ListingRows:         "table.account-table tr",
	AuthenticatedMarker: `a[href*="logout"]`,
}

const accountHTML = `<html><head><title> craigslist account </title></head><body>
<a href="/logout">log out</a>
<table class="account-table">
<tr><th>title</th></tr>
<tr><td class="title">bike</td></tr>
<tr><td class="title">desk</td></tr>
</table></body></html>`

func TestKeys(t *testing.T) {
	shot, html := Keys(TagFinal)
	assert.Equal(t, "login.png", shot)
	assert.Equal(t, "page.html", html)

	shot, html = Keys("login_failed")
	assert.Equal(t, "login_failed.png", shot)
	assert.Equal(t, "login_failed.html", html)
}

func TestCaptureFinal(t *testing.T) {
	page := mocks.NewFakePage()
	page.HTML = accountHTML
	store := mocks.NewMemoryStore()

	d := NewCapturer(store, site, zaptest.NewLogger(t)).Capture(context.Background(), page, TagFinal)

	assert.Empty(t, d.Errors)
	assert.Equal(t, "login.png", d.ScreenshotKey)
	assert.Equal(t, "page.html", d.HTMLKey)
	assert.Equal(t, "craigslist account", d.PageTitle)
	assert.Equal(t, 3, d.TableRows)
	assert.True(t, d.MarkerPresent)
	assert.False(t, d.CapturedAt.IsZero())

	shot, ok := store.Get("login.png")
	require.True(t, ok)
	assert.Equal(t, schemas.ContentTypePNG, shot.ContentType)
	assert.Equal(t, page.Shot, shot.Value)

	html, ok := store.Get("page.html")
	require.True(t, ok)
	assert.Equal(t, schemas.ContentTypeHTML, html.ContentType)
	assert.Equal(t, accountHTML, string(html.Value))
}

func TestCaptureSwallowsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	page := mocks.NewFakePage()
	page.ScreenshotErr = errors.New("target closed")
	page.ContentErr = errors.New("target closed")

	d := NewCapturer(mocks.NewMemoryStore(), site, zap.New(core)).Capture(context.Background(), page, "session_lost")

	assert.Len(t, d.Errors, 2)
	assert.Empty(t, d.ScreenshotKey)
	assert.Empty(t, d.HTMLKey)
	assert.Equal(t, 2, logs.FilterMessage("Diagnostics capture step failed.").Len())
}

func TestCaptureStoreFailure(t *testing.T) {
	page := mocks.NewFakePage()
	page.HTML = accountHTML
	store := mocks.NewMemoryStore()
	store.SetErr = map[string]error{"login.png": errors.New("read-only")}

	d := NewCapturer(store, site, zaptest.NewLogger(t)).Capture(context.Background(), page, TagFinal)

	require.Len(t, d.Errors, 1)
	assert.Contains(t, d.Errors[0], "read-only")
	assert.Empty(t, d.ScreenshotKey)
	assert.Equal(t, "page.html", d.HTMLKey, "one failed artifact does not stop the next")
	assert.True(t, d.MarkerPresent)
}

func TestCaptureAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := mocks.NewFakePage()
	store := mocks.NewMemoryStore()

	d := NewCapturer(store, site, zaptest.NewLogger(t)).Capture(ctx, page, TagFinal)
	assert.Empty(t, d.Errors, "capture outlives the run context")
	assert.Equal(t, 1, store.Writes("page.html"))
	assert.Equal(t, "fake", d.PageTitle)
	assert.False(t, d.MarkerPresent)
}
