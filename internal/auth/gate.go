// File: internal/auth/gate.go
// Description: Establishes and observes the authenticated session. The gate
// never caches what it sees; every answer comes from probing the live page.

package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

const (
	defaultFormWait      = 15 * time.Second
	defaultMarkerWait    = 10 * time.Second
	defaultChallengeWait = 2 * time.Second
	defaultPollInterval  = 2 * time.Second
)

// Gate acquires a session with exactly one strategy per run.
type Gate struct {
	cfg    schemas.RunConfig
	store  schemas.KeyValueStore
	logger *zap.Logger
	chain  SubmitChain

	formWait      time.Duration
	markerWait    time.Duration
	challengeWait time.Duration
	pollInterval  time.Duration
	now           func() time.Time
}

// Option customizes a Gate.
type Option func(*Gate)

// WithSubmitChain replaces the default submit control resolution.
func WithSubmitChain(chain SubmitChain) Option {
	return func(g *Gate) { g.chain = chain }
}

// WithProbeTimings overrides the marker, challenge, and manual poll timings.
func WithProbeTimings(marker, challenge, poll time.Duration) Option {
	return func(g *Gate) {
		g.markerWait = marker
		g.challengeWait = challenge
		g.pollInterval = poll
	}
}

// WithFormWait bounds the wait for the login form to render.
func WithFormWait(d time.Duration) Option {
	return func(g *Gate) { g.formWait = d }
}

// NewGate creates a gate for one run.
func NewGate(cfg schemas.RunConfig, store schemas.KeyValueStore, logger *zap.Logger, opts ...Option) *Gate {
	g := &Gate{
		cfg:           cfg,
		store:         store,
		logger:        logger.Named("auth"),
		chain:         DefaultSubmitChain(cfg.Site, cfg.SubmitPreference),
		formWait:      defaultFormWait,
		markerWait:    defaultMarkerWait,
		challengeWait: defaultChallengeWait,
		pollInterval:  defaultPollInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Strategy reports which acquisition strategy this run uses.
func (g *Gate) Strategy() schemas.AuthStrategy {
	return g.cfg.EffectiveAuthStrategy()
}

// EstablishSession acquires a session. It returns Authenticated or a
// classified *schemas.RunError; there is no fallback between strategies.
func (g *Gate) EstablishSession(ctx context.Context, driver schemas.PageDriver) (schemas.SessionState, error) {
	strategy := g.Strategy()
	g.logger.Info("Establishing session.", zap.String("strategy", string(strategy)))

	var err error
	switch strategy {
	case schemas.AuthManual:
		err = g.manualLogin(ctx, driver)
	case schemas.AuthCookies:
		err = g.restoreCookies(ctx, driver)
	case schemas.AuthCredentials:
		err = g.credentialLogin(ctx, driver)
	default:
		err = schemas.NewRunError(schemas.ErrCodeConfig, nil, "unsupported auth strategy %q", strategy)
	}
	if err != nil {
		return schemas.Unauthenticated, err
	}
	g.logger.Info("Session established.")
	return schemas.Authenticated, nil
}

func (g *Gate) credentialLogin(ctx context.Context, driver schemas.PageDriver) error {
	site := g.cfg.Site
	if !g.cfg.Credentials.Present() {
		return schemas.NewRunError(schemas.ErrCodeConfig, nil, "credential login requires an email and a password")
	}

	if err := driver.Goto(ctx, site.LoginURL, schemas.WaitDOMContentLoaded, g.cfg.Timeout()); err != nil {
		return schemas.NewRunError(schemas.ErrCodeLoginConfirmationFailed, err, "could not open the login page")
	}
	if err := driver.WaitForSelector(ctx, site.EmailInput, g.formWait); err != nil {
		return schemas.NewRunError(schemas.ErrCodeLoginConfirmationFailed, err, "login form did not render")
	}
	if err := driver.Fill(ctx, site.EmailInput, g.cfg.Credentials.Email); err != nil {
		return schemas.NewRunError(schemas.ErrCodeLoginConfirmationFailed, err, "could not fill the email field")
	}
	if err := driver.Fill(ctx, site.PasswordInput, g.cfg.Credentials.Password); err != nil {
		return schemas.NewRunError(schemas.ErrCodeLoginConfirmationFailed, err, "could not fill the password field")
	}

	if _, err := g.chain.Submit(ctx, driver, g.logger); err != nil {
		return schemas.NewRunError(schemas.ErrCodeLoginConfirmationFailed, err, "could not submit the login form")
	}
	return g.confirm(ctx, driver, schemas.ErrCodeLoginConfirmationFailed, "login was not confirmed")
}

func (g *Gate) restoreCookies(ctx context.Context, driver schemas.PageDriver) error {
	cookies, err := loadCookies(ctx, g.store)
	if err != nil {
		return schemas.NewRunError(schemas.ErrCodeNoStoredSession, err, "stored session could not be read")
	}
	stored := len(cookies)
	cookies = liveCookies(cookies, g.now())
	if len(cookies) == 0 {
		if stored > 0 {
			return schemas.NewRunError(schemas.ErrCodeNoStoredSession, nil, "stored session has expired; run a local manual login again")
		}
		return schemas.NewRunError(schemas.ErrCodeNoStoredSession, nil, "no stored session; run a local manual login first")
	}
	if err := driver.AddCookies(ctx, cookies); err != nil {
		return schemas.NewRunError(schemas.ErrCodeNoStoredSession, err, "stored session could not be injected")
	}
	g.logger.Debug("Stored cookies injected.", zap.Int("count", len(cookies)))

	if err := driver.Goto(ctx, g.cfg.Site.ListingsURL, schemas.WaitDOMContentLoaded, g.cfg.Timeout()); err != nil {
		return schemas.NewRunError(schemas.ErrCodeLoginConfirmationFailed, err, "could not open the listings page")
	}
	return g.confirm(ctx, driver, schemas.ErrCodeLoginConfirmationFailed, "stored session was not accepted")
}

// manualLogin waits for a human to sign in and then persists the session.
// It is the only path that writes cookies.
func (g *Gate) manualLogin(ctx context.Context, driver schemas.PageDriver) error {
	if err := driver.Goto(ctx, g.cfg.Site.LoginURL, schemas.WaitDOMContentLoaded, g.cfg.Timeout()); err != nil {
		return schemas.NewRunError(schemas.ErrCodeManualLoginTimeout, err, "could not open the login page")
	}
	g.logger.Info("Waiting for manual login in the browser window.", zap.Duration("timeout", g.cfg.Timeout()))

	waitCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout())
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(g.pollInterval), 1)
	for {
		if err := waitToken(waitCtx, limiter); err != nil {
			return schemas.NewRunError(schemas.ErrCodeManualLoginTimeout, err, "manual login was not completed in time")
		}
		if g.visibleNow(waitCtx, driver, g.cfg.Site.AuthenticatedMarker) {
			break
		}
	}

	if err := g.persistSession(ctx, driver); err != nil {
		g.logger.Error("Failed to persist session cookies.", zap.Error(err))
	}
	return nil
}

// waitToken blocks until limiter grants a token or ctx is done. Unlike
// Limiter.Wait it keeps waiting right up to ctx's deadline.
func waitToken(ctx context.Context, limiter *rate.Limiter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := limiter.Reserve()
	timer := time.NewTimer(r.Delay())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (g *Gate) persistSession(ctx context.Context, driver schemas.PageDriver) error {
	domain, err := registrableDomain(g.cfg.Site.LoginURL)
	if err != nil {
		return err
	}
	cookies, err := driver.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("reading browser cookies: %w", err)
	}
	scoped := scopeCookies(cookies, domain)
	if err := saveCookies(ctx, g.store, scoped); err != nil {
		return err
	}
	g.logger.Info("Session cookies persisted.", zap.Int("count", len(scoped)), zap.String("domain", domain))
	return nil
}

func (g *Gate) confirm(ctx context.Context, driver schemas.PageDriver, code schemas.ErrorCode, msg string) error {
	if err := driver.WaitForSelector(ctx, g.cfg.Site.AuthenticatedMarker, g.cfg.LoginConfirmTimeout()); err != nil {
		return schemas.NewRunError(code, err, "%s", msg)
	}
	return nil
}

// VerifySession classifies the current page. Only the authenticated marker
// proves a healthy session.
func (g *Gate) VerifySession(ctx context.Context, driver schemas.PageDriver) schemas.SessionState {
	if ctx.Err() == nil {
		if err := driver.WaitForSelector(ctx, g.cfg.Site.AuthenticatedMarker, g.markerWait); err == nil {
			return schemas.Authenticated
		}
	}
	// Classification continues on a detached context so a cancelled run can
	// still explain what the page looked like.
	probeCtx := context.WithoutCancel(ctx)
	switch {
	case g.DetectChallenge(probeCtx, driver):
		return schemas.ChallengeDetected
	case g.visibleNow(probeCtx, driver, g.cfg.Site.PasswordInput):
		return schemas.Expired
	default:
		return schemas.Unauthenticated
	}
}

// DetectChallenge reports whether a verification challenge is visible. It is
// a bounded probe and only ever enriches diagnostics.
func (g *Gate) DetectChallenge(ctx context.Context, driver schemas.PageDriver) bool {
	if g.cfg.Site.ChallengeMarker == "" {
		return false
	}
	return driver.WaitForSelector(ctx, g.cfg.Site.ChallengeMarker, g.challengeWait) == nil
}

func (g *Gate) visibleNow(ctx context.Context, driver schemas.PageDriver, selector string) bool {
	if selector == "" {
		return false
	}
	elements, err := driver.LocateAll(ctx, selector)
	if err != nil {
		return false
	}
	for _, el := range elements {
		if el.IsVisible(ctx, 0) {
			return true
		}
	}
	return false
}
