package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/relist-cli/api/schemas"
	"github.com/xkilldash9x/relist-cli/internal/config"
)

type ctxKey struct{}

func TestCombineContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("secondary cancellation propagates", func(t *testing.T) {
		parent := context.WithValue(context.Background(), ctxKey{}, "target")
		secondary, cancelSecondary := context.WithCancel(context.Background())

		combined, cancel := CombineContext(parent, secondary)
		defer cancel()

		assert.Equal(t, "target", combined.Value(ctxKey{}), "values come from the parent")
		cancelSecondary()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not cancelled")
		}
	})

	t.Run("parent cancellation propagates", func(t *testing.T) {
		parent, cancelParent := context.WithCancel(context.Background())
		combined, cancel := CombineContext(parent, context.Background())
		defer cancel()

		cancelParent()
		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("cancel func releases both", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		assert.Error(t, combined.Err())
	})
}

func TestCookieConversion(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	future := float64(now.Add(24 * time.Hour).Unix())
	past := float64(now.Add(-time.Hour).Unix())

	stored := []schemas.Cookie{
		{Name: "cl_session", Value: "abc", Domain: ".craigslist.org", Path: "/", Expires: future, HTTPOnly: true, Secure: true, SameSite: "Lax"},
		{Name: "stale", Value: "x", Domain: "accounts.craigslist.org", Expires: past},
		{Name: "session_only", Value: "y", Domain: "accounts.craigslist.org"},
		{Name: "", Value: "nameless"},
	}

	params := toCookieParams(stored, now)
	require.Len(t, params, 2, "expired and nameless cookies are dropped")

	first := params[0]
	assert.Equal(t, "cl_session", first.Name)
	assert.Equal(t, network.CookieSameSiteLax, first.SameSite)
	require.NotNil(t, first.Expires)
	assert.Equal(t, int64(future), first.Expires.Time().Unix())
	assert.True(t, first.HTTPOnly)

	second := params[1]
	assert.Equal(t, "session_only", second.Name)
	assert.Equal(t, "/", second.Path, "path defaults to root")
	assert.Nil(t, second.Expires)

	raw := []*network.Cookie{
		{Name: "cl_session", Value: "abc", Domain: ".craigslist.org", Path: "/", Expires: future, Secure: true, SameSite: network.CookieSameSiteLax},
		{Name: "tmp", Value: "1", Domain: "accounts.craigslist.org", Path: "/", Expires: -1, Session: true},
		nil,
	}
	cookies := fromNetworkCookies(raw)
	require.Len(t, cookies, 2)
	assert.Equal(t, "Lax", cookies[0].SameSite)
	assert.Equal(t, future, cookies[0].Expires)
	assert.Zero(t, cookies[1].Expires)
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, kb.Enter, keyFor("Enter"))
	assert.Equal(t, kb.Tab, keyFor("Tab"))
	assert.Equal(t, "a", keyFor("a"))
}

func TestExecOptions(t *testing.T) {
	base := len(execOptions(config.BrowserConfig{}))

	opts := execOptions(config.BrowserConfig{
		Headless:   true,
		NoSandbox:  true,
		DisableGPU: true,
		ExecPath:   "/usr/bin/chromium",
		WindowW:    1280,
		WindowH:    900,
		UserAgent:  "relist-test",
		Args:       []string{"--lang=en-US", "mute-audio", "--"},
	})
	// headless, sandbox, gpu, exec path, window, user agent, and two flags.
	assert.Equal(t, base+8, len(opts))
}
