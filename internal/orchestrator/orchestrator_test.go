// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/relist-cli/api/schemas"
	"github.com/xkilldash9x/relist-cli/internal/auth"
	"github.com/xkilldash9x/relist-cli/internal/config"
	"github.com/xkilldash9x/relist-cli/internal/mocks"
	"github.com/xkilldash9x/relist-cli/internal/observability"
	"github.com/xkilldash9x/relist-cli/internal/scheduler"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const accountURL = "https://accounts.example.org/login/home"

var testSite = schemas.SiteConfig{
	LoginURL:            accountURL,
	ListingsURL:         accountURL,
	EmailInput:          "#email",
	PasswordInput:       "#password",
	LoginForm:           "form.login",
	LoginButtons:        "button",
	LoginText:           "log in",
	SubmitButtons:       "button[type=submit]",
	AuthenticatedMarker: "a.logout",
	ChallengeMarker:     ".captcha",
	ListingsTable:       "table.account-table",
	ListingRows:         "table.account-table tr",
	HeaderCell:          "th",
	TitleCell:           "td.title",
	StatusCell:          "td.status",
	PostingIDField:      "input[name=postingID]",
	PostingIDAttr:       "value",
	RepostControl:       "input.repost",
}

// fakeSite simulates the account page: a login form when signed out and the
// postings table when signed in.
type fakeSite struct {
	mu       sync.Mutex
	page     *mocks.FakePage
	signedIn bool
	rows     []*mocks.FakeElement
	controls []*mocks.FakeElement
	closes   atomic.Int32
}

func newFakeSite(titles ...string) *fakeSite {
	s := &fakeSite{page: mocks.NewFakePage()}
	for i, title := range titles {
		control := mocks.NewFakeElement("repost-"+title, "repost")
		row := mocks.NewFakeElement("row-"+title, title).
			WithChild("td.title", mocks.NewFakeElement("title", title)).
			WithChild("td.status", mocks.NewFakeElement("status", "active")).
			WithChild("input[name=postingID]", mocks.NewFakeElement("id", "").WithAttr("value", string(rune('1'+i)))).
			WithChild("input.repost", control)
		s.rows = append(s.rows, row)
		s.controls = append(s.controls, control)
	}
	login := mocks.NewFakeElement("login-button", "Log in")
	login.OnClick = func(*mocks.FakePage) { s.setSignedIn(true) }
	s.page.Set("button", login)
	s.page.OnGoto = func(*mocks.FakePage, string) { s.render() }
	return s
}

func (s *fakeSite) setSignedIn(v bool) {
	s.mu.Lock()
	s.signedIn = v
	s.mu.Unlock()
	s.render()
}

func (s *fakeSite) render() {
	s.mu.Lock()
	signedIn := s.signedIn
	s.mu.Unlock()

	p := s.page
	if !signedIn {
		p.Clear("a.logout")
		p.Clear("table.account-table")
		p.Clear("table.account-table tr")
		p.Set("#email", mocks.NewFakeElement("email", ""))
		p.Set("#password", mocks.NewFakeElement("password", ""))
		return
	}
	p.Clear("#email")
	p.Clear("#password")
	p.Set("a.logout", mocks.NewFakeElement("logout", "log out"))
	p.Set("table.account-table", mocks.NewFakeElement("table", ""))
	p.Set("table.account-table tr", s.rows...)
}

func (s *fakeSite) clicks() int {
	n := 0
	for _, c := range s.controls {
		n += c.Clicks()
	}
	return n
}

type fakeBrowser struct {
	*mocks.FakePage
	site *fakeSite
}

func (b *fakeBrowser) Close() error {
	b.site.closes.Add(1)
	return nil
}

func (s *fakeSite) launcher() BrowserLauncher {
	return func(context.Context) (Browser, error) {
		return &fakeBrowser{FakePage: s.page, site: s}, nil
	}
}

func runConfig(mode schemas.Mode, strategy schemas.AuthStrategy) schemas.RunConfig {
	return schemas.RunConfig{
		Mode:             mode,
		ListingFilter:    schemas.ListingFilter{StatusIn: []string{"active"}, MaxActions: 5},
		DelayRange:       schemas.DelayRange{MinMs: 300, MaxMs: 1200},
		SettleMs:         1500,
		TimeoutMs:        5000,
		AuthStrategy:     strategy,
		SubmitPreference: schemas.PreferSecond,
		Credentials:      schemas.Credentials{Email: "me@example.org", Password: "pw"},
		Site:             testSite,
	}
}

func mockConfig(rc schemas.RunConfig) *mocks.MockConfig {
	cfg := new(mocks.MockConfig)
	cfg.On("RunConfig").Return(rc)
	cfg.On("Metrics").Return(config.MetricsConfig{})
	return cfg
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestOrchestrator(t *testing.T, cfg config.Interface, store schemas.KeyValueStore, launch BrowserLauncher, extra ...Option) *Orchestrator {
	t.Helper()
	opts := []Option{
		WithRunID("run-test"),
		WithTableWait(30 * time.Millisecond),
		WithGateOptions(
			auth.WithProbeTimings(30*time.Millisecond, 20*time.Millisecond, 5*time.Millisecond),
			auth.WithFormWait(100*time.Millisecond),
		),
		WithSchedulerOptions(scheduler.WithSleeper(noSleep)),
	}
	o, err := New(cfg, store, launch, zaptest.NewLogger(t), append(opts, extra...)...)
	require.NoError(t, err)
	return o
}

func storedSummary(t *testing.T, store *mocks.MemoryStore) schemas.RunSummary {
	t.Helper()
	require.Equal(t, 1, store.Writes(schemas.KeyRunSummary), "exactly one summary is written")
	rec, ok := store.Get(schemas.KeyRunSummary)
	require.True(t, ok)
	var s schemas.RunSummary
	require.NoError(t, json.Unmarshal(rec.Value, &s))
	return s
}

func diagnosticTags(s schemas.RunSummary) []string {
	tags := make([]string, 0, len(s.Diagnostics))
	for _, d := range s.Diagnostics {
		tags = append(tags, d.Tag)
	}
	return tags
}

func TestNewRejectsNilDependencies(t *testing.T) {
	_, err := New(nil, mocks.NewMemoryStore(), newFakeSite().launcher(), zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestDryRunWithCredentials(t *testing.T) {
	site := newFakeSite("bike", "desk", "lamp")
	store := mocks.NewMemoryStore()
	cfg := mockConfig(runConfig(schemas.ModeDryRun, schemas.AuthCredentials))
	metrics := observability.NewRunMetrics()

	summary, err := newTestOrchestrator(t, cfg, store, site.launcher(), WithMetrics(metrics)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusOK, summary.Status)
	assert.Equal(t, "run-test", summary.RunID)
	assert.Equal(t, 3, summary.RepostFound)
	assert.Zero(t, summary.RepostClicked)
	assert.Len(t, summary.WouldActOn, 3)
	assert.Zero(t, site.clicks(), "dry run never clicks")
	assert.Equal(t, int32(1), site.closes.Load())
	assert.Equal(t, []string{"final"}, diagnosticTags(summary))

	persisted := storedSummary(t, store)
	assert.Equal(t, summary.Message, persisted.Message)
	assert.Equal(t, schemas.ModeDryRun, persisted.Mode)
	_, ok := store.Get(schemas.KeyLoginShot)
	assert.True(t, ok)
	_, ok = store.Get(schemas.KeyPageHTML)
	assert.True(t, ok)
	assert.Zero(t, store.Writes(schemas.KeyCookies))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsCompleted.WithLabelValues("ok", "")))
	cfg.AssertExpectations(t)
}

func TestRepostRun(t *testing.T) {
	site := newFakeSite("bike", "desk")
	store := mocks.NewMemoryStore()

	summary, err := newTestOrchestrator(t, mockConfig(runConfig(schemas.ModeRepost, schemas.AuthCredentials)), store, site.launcher()).
		Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusOK, summary.Status)
	assert.Empty(t, summary.ErrorCode)
	assert.Equal(t, 2, summary.RepostClicked)
	assert.Equal(t, []schemas.ListingRef{{PostingID: "1", Title: "bike"}, {PostingID: "2", Title: "desk"}}, summary.ActedOn)
	assert.Equal(t, 2, site.clicks())
	assert.Equal(t, "reposted 2 of 2 eligible listing(s)", summary.Message)
}

func TestSessionLossMidRun(t *testing.T) {
	site := newFakeSite("bike", "desk", "lamp")
	// The second repost trips a verification challenge and signs the user out.
	site.controls[1].OnClick = func(p *mocks.FakePage) {
		p.Set(".captcha", mocks.NewFakeElement("captcha", ""))
		site.setSignedIn(false)
	}
	store := mocks.NewMemoryStore()

	summary, err := newTestOrchestrator(t, mockConfig(runConfig(schemas.ModeRepost, schemas.AuthCredentials)), store, site.launcher()).
		Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusError, summary.Status)
	assert.Equal(t, schemas.ErrCodeSessionLost, summary.ErrorCode)
	assert.Equal(t, 3, summary.RepostFound)
	assert.Equal(t, 1, summary.RepostClicked)
	assert.Len(t, summary.ActedOn, 1)
	require.NotNil(t, summary.Unconfirmed)
	assert.Equal(t, "desk", summary.Unconfirmed.Title)
	require.NotNil(t, summary.VerificationBanner)
	assert.True(t, *summary.VerificationBanner)
	assert.Zero(t, site.controls[2].Clicks())
	assert.Equal(t, []string{TagSessionLost, "final"}, diagnosticTags(summary))
	assert.Equal(t, int32(1), site.closes.Load())

	_, ok := store.Get("session_lost.png")
	assert.True(t, ok)
	assert.Equal(t, summary.RepostClicked, storedSummary(t, store).RepostClicked)
}

func TestCookieStrategyWithoutStoredSession(t *testing.T) {
	site := newFakeSite("bike")
	store := mocks.NewMemoryStore()

	summary, err := newTestOrchestrator(t, mockConfig(runConfig(schemas.ModeRepost, schemas.AuthCookies)), store, site.launcher()).
		Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusError, summary.Status)
	assert.Equal(t, schemas.ErrCodeNoStoredSession, summary.ErrorCode)
	assert.Zero(t, site.page.CallCount("fill #email"), "no fallback to credentials")
	assert.Equal(t, []string{TagAuthFailed, "final"}, diagnosticTags(summary))
	assert.Equal(t, int32(1), site.closes.Load())
	storedSummary(t, store)
}

func TestUnsupportedModeNeverLaunchesBrowser(t *testing.T) {
	var launched atomic.Bool
	launch := func(context.Context) (Browser, error) {
		launched.Store(true)
		return nil, errors.New("unreachable")
	}
	store := mocks.NewMemoryStore()

	summary, err := newTestOrchestrator(t, mockConfig(runConfig("delete", schemas.AuthCredentials)), store, launch).
		Run(context.Background())
	require.NoError(t, err)

	assert.False(t, launched.Load())
	assert.Equal(t, schemas.ErrCodeConfig, summary.ErrorCode)
	assert.Equal(t, schemas.Mode("delete"), storedSummary(t, store).Mode)
}

func TestLaunchFailure(t *testing.T) {
	store := mocks.NewMemoryStore()
	launch := func(context.Context) (Browser, error) { return nil, errors.New("chrome not found") }

	summary, err := newTestOrchestrator(t, mockConfig(runConfig(schemas.ModeDryRun, schemas.AuthCredentials)), store, launch).
		Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusError, summary.Status)
	assert.Equal(t, schemas.ErrCodeUnexpected, summary.ErrorCode)
	assert.Empty(t, summary.Diagnostics)
	storedSummary(t, store)
}

func TestPanicStillWritesSummaryAndClosesBrowser(t *testing.T) {
	site := newFakeSite("bike")
	site.page.OnGoto = func(*mocks.FakePage, string) { panic("driver exploded") }
	store := mocks.NewMemoryStore()

	summary, err := newTestOrchestrator(t, mockConfig(runConfig(schemas.ModeRepost, schemas.AuthCredentials)), store, site.launcher()).
		Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusError, summary.Status)
	assert.Equal(t, schemas.ErrCodeUnexpected, summary.ErrorCode)
	assert.Equal(t, "unexpected failure", summary.Message)
	assert.Equal(t, int32(1), site.closes.Load())
	storedSummary(t, store)
}

func TestSummaryPersistFailureIsReported(t *testing.T) {
	site := newFakeSite("bike")
	store := mocks.NewMemoryStore()
	store.SetErr = map[string]error{schemas.KeyRunSummary: errors.New("disk full")}

	summary, err := newTestOrchestrator(t, mockConfig(runConfig(schemas.ModeDryRun, schemas.AuthCredentials)), store, site.launcher()).
		Run(context.Background())
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, schemas.StatusOK, summary.Status)
	assert.Equal(t, int32(1), site.closes.Load())
}
