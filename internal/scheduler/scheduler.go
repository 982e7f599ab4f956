// File: internal/scheduler/scheduler.go
// Description: The action loop. Pops one target at a time, paces, clicks,
// settles, reloads the listings page and re-verifies the session before the
// next target is even discovered.

package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/api/schemas"
	"github.com/xkilldash9x/relist-cli/internal/observability"
)

// Discoverer produces the current targets of the listings page.
type Discoverer interface {
	Discover(ctx context.Context, driver schemas.PageDriver, filter schemas.ListingFilter) ([]schemas.Target, error)
}

// SessionVerifier observes the session from the live page.
type SessionVerifier interface {
	VerifySession(ctx context.Context, driver schemas.PageDriver) schemas.SessionState
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Outcome is everything the loop learned, including partial progress when it
// stops early.
type Outcome struct {
	RepostFound        int
	Attempts           int
	ActedOn            []schemas.ListingRef
	WouldActOn         []schemas.ListingRef
	Failures           []schemas.ActionFailure
	Unconfirmed        *schemas.ListingRef
	VerificationBanner *bool
	FinalState         schemas.SessionState
}

// Scheduler runs the action loop of one run.
type Scheduler struct {
	cfg        schemas.RunConfig
	discoverer Discoverer
	verifier   SessionVerifier
	metrics    *observability.RunMetrics
	logger     *zap.Logger

	sleep  Sleeper
	int64N func(n int64) int64
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithSleeper replaces the context-aware sleep used for pacing and settling.
func WithSleeper(s Sleeper) Option {
	return func(sc *Scheduler) { sc.sleep = s }
}

// WithRandom replaces the source of pacing jitter. fn must return a value in [0, n).
func WithRandom(fn func(n int64) int64) Option {
	return func(sc *Scheduler) { sc.int64N = fn }
}

// New creates a Scheduler. A nil metrics set is replaced by a private one.
func New(cfg schemas.RunConfig, d Discoverer, v SessionVerifier, metrics *observability.RunMetrics, logger *zap.Logger, opts ...Option) *Scheduler {
	if metrics == nil {
		metrics = observability.NewRunMetrics()
	}
	s := &Scheduler{
		cfg:        cfg,
		discoverer: d,
		verifier:   v,
		metrics:    metrics,
		logger:     logger.Named("scheduler"),
		sleep:      sleepContext,
		int64N:     rand.Int64N,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the loop against an authenticated page. The returned Outcome
// is always usable, even alongside an error.
func (s *Scheduler) Run(ctx context.Context, driver schemas.PageDriver) (Outcome, error) {
	out := Outcome{FinalState: schemas.Authenticated}
	mode := s.cfg.Mode
	if !mode.Valid() {
		return out, schemas.NewRunError(schemas.ErrCodeConfig, nil, "unsupported mode %q", mode)
	}

	if err := s.openListings(ctx, driver); err != nil {
		return out, err
	}
	queue, err := s.discover(ctx, driver)
	if err != nil {
		return out, err
	}
	out.RepostFound = len(queue)

	if mode == schemas.ModeDryRun {
		for _, t := range queue {
			out.WouldActOn = append(out.WouldActOn, t.Ref())
		}
		s.logger.Info("Dry run complete; nothing was clicked.", zap.Int("would_act_on", len(out.WouldActOn)))
		return out, nil
	}

	attempted := make(map[string]struct{})
	for {
		if out.Attempts >= s.cfg.ListingFilter.MaxActions {
			s.logger.Info("Action cap reached.", zap.Int("max_actions", s.cfg.ListingFilter.MaxActions))
			break
		}
		queue = dropAttempted(queue, attempted)
		if len(queue) == 0 {
			s.logger.Info("No eligible targets left.")
			break
		}

		target := queue[0]
		if target.PostingID != "" {
			attempted[target.PostingID] = struct{}{}
		}
		out.Attempts++

		clicked, err := s.act(ctx, target, &out)
		if err != nil {
			return out, err
		}

		if err := s.sleep(ctx, s.cfg.SettleDelay()); err != nil {
			return out, interrupted(err)
		}
		if err := s.openListings(ctx, driver); err != nil {
			s.logger.Warn("Reloading the listings page failed.", zap.Error(err))
		}

		state := s.verifier.VerifySession(ctx, driver)
		if err := ctx.Err(); err != nil {
			// A run that ran out of time has not lost its session.
			if clicked {
				ref := target.Ref()
				out.Unconfirmed = &ref
			}
			return out, interrupted(err)
		}
		if state != schemas.Authenticated {
			return out, s.sessionLost(target, clicked, state, &out)
		}

		if clicked {
			out.ActedOn = append(out.ActedOn, target.Ref())
			s.metrics.ActionsConfirmed.Inc()
			s.logger.Info("Repost confirmed.", zap.String("posting_id", target.PostingID), zap.String("title", target.Title))
		}

		// Never reuse the previous queue; the page may have changed under it.
		if queue, err = s.discover(ctx, driver); err != nil {
			return out, err
		}
	}
	return out, nil
}

// act paces and clicks a single target. A rejected click is recorded and the
// loop goes on.
func (s *Scheduler) act(ctx context.Context, target schemas.Target, out *Outcome) (bool, error) {
	delay := s.pacingDelay()
	s.logger.Debug("Pacing before action.", zap.Duration("delay", delay), zap.String("target", target.Key()))
	if err := s.sleep(ctx, delay); err != nil {
		return false, interrupted(err)
	}

	s.metrics.ActionsAttempted.Inc()
	if err := target.Action.Click(ctx, s.cfg.Timeout()); err != nil {
		if ctx.Err() != nil {
			return false, interrupted(ctx.Err())
		}
		s.metrics.ActionsFailed.Inc()
		s.logger.Warn("Repost click failed.", zap.String("target", target.Key()), zap.Error(err))
		out.Failures = append(out.Failures, schemas.ActionFailure{
			ListingRef: target.Ref(),
			Error:      schemas.NewRunError(schemas.ErrCodeActionFailed, err, "repost click failed").Error(),
		})
		return false, nil
	}
	return true, nil
}

func (s *Scheduler) sessionLost(target schemas.Target, clicked bool, state schemas.SessionState, out *Outcome) error {
	banner := state == schemas.ChallengeDetected
	out.VerificationBanner = &banner
	out.FinalState = state
	if clicked {
		ref := target.Ref()
		out.Unconfirmed = &ref
	}
	s.metrics.SessionLosses.Inc()
	s.logger.Error("Session lost during action loop.",
		zap.Stringer("state", state),
		zap.Bool("verification_banner", banner),
		zap.Int("confirmed", len(out.ActedOn)))
	return schemas.NewRunError(schemas.ErrCodeSessionLost, nil,
		"session %s after acting on %q; %d action(s) confirmed", state, target.Title, len(out.ActedOn))
}

func (s *Scheduler) discover(ctx context.Context, driver schemas.PageDriver) ([]schemas.Target, error) {
	targets, err := s.discoverer.Discover(ctx, driver, s.cfg.ListingFilter)
	if err != nil {
		return nil, fmt.Errorf("target discovery failed: %w", err)
	}
	s.metrics.TargetsDiscovered.Add(float64(len(targets)))
	return targets, nil
}

func (s *Scheduler) openListings(ctx context.Context, driver schemas.PageDriver) error {
	if err := driver.Goto(ctx, s.cfg.Site.ListingsURL, schemas.WaitDOMContentLoaded, s.cfg.Timeout()); err != nil {
		return fmt.Errorf("failed to open listings page: %w", err)
	}
	return nil
}

// pacingDelay draws uniformly from [MinMs, MaxMs] inclusive.
func (s *Scheduler) pacingDelay() time.Duration {
	lo, hi := int64(s.cfg.DelayRange.MinMs), int64(s.cfg.DelayRange.MaxMs)
	if hi < lo {
		hi = lo
	}
	return time.Duration(lo+s.int64N(hi-lo+1)) * time.Millisecond
}

// dropAttempted removes listings already attempted in this run. Rows without
// a posting id cannot be told apart reliably, so they are always kept and
// only the cap bounds them.
func dropAttempted(queue []schemas.Target, attempted map[string]struct{}) []schemas.Target {
	kept := queue[:0:0]
	for _, t := range queue {
		if _, done := attempted[t.PostingID]; t.PostingID == "" || !done {
			kept = append(kept, t)
		}
	}
	return kept
}

func interrupted(err error) error {
	return fmt.Errorf("run interrupted: %w", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
