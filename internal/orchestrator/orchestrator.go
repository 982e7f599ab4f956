// File: internal/orchestrator/orchestrator.go
// Description: Manages the lifecycle of a single run. It acquires the browser
// once, authenticates, hands the page to the scheduler, and on every exit path
// captures diagnostics, closes the browser and writes exactly one summary.

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/api/schemas"
	"github.com/xkilldash9x/relist-cli/internal/auth"
	"github.com/xkilldash9x/relist-cli/internal/config"
	"github.com/xkilldash9x/relist-cli/internal/diagnostics"
	"github.com/xkilldash9x/relist-cli/internal/listings"
	"github.com/xkilldash9x/relist-cli/internal/observability"
	"github.com/xkilldash9x/relist-cli/internal/reporting"
	"github.com/xkilldash9x/relist-cli/internal/scheduler"
)

// Failure-point capture tags.
const (
	TagAuthFailed  = "auth_failed"
	TagSessionLost = "session_lost"
)

const pushTimeout = 10 * time.Second

// Browser is a page driver that owns a browser process.
type Browser interface {
	schemas.PageDriver
	Close() error
}

// BrowserLauncher starts the run's single browser session.
type BrowserLauncher func(ctx context.Context) (Browser, error)

// Orchestrator runs one end-to-end relist run.
type Orchestrator struct {
	cfg     config.Interface
	store   schemas.KeyValueStore
	launch  BrowserLauncher
	logger  *zap.Logger
	metrics *observability.RunMetrics

	newID     func() string
	now       func() time.Time
	gateOpts  []auth.Option
	schedOpts []scheduler.Option
	tableWait time.Duration
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithGateOptions passes options to the session gate.
func WithGateOptions(opts ...auth.Option) Option {
	return func(o *Orchestrator) { o.gateOpts = append(o.gateOpts, opts...) }
}

// WithSchedulerOptions passes options to the scheduler.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(o *Orchestrator) { o.schedOpts = append(o.schedOpts, opts...) }
}

// WithTableWait bounds the wait for the listings table.
func WithTableWait(d time.Duration) Option {
	return func(o *Orchestrator) { o.tableWait = d }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.newID = func() string { return id } }
}

// WithMetrics replaces the run's metric set.
func WithMetrics(m *observability.RunMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator with its dependencies.
func New(cfg config.Interface, store schemas.KeyValueStore, launch BrowserLauncher, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if cfg == nil || store == nil || launch == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	o := &Orchestrator{
		cfg:     cfg,
		store:   store,
		launch:  launch,
		logger:  logger,
		metrics: observability.NewRunMetrics(),
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes the run. The returned summary is always the one that was
// persisted; the error only reports a failure to persist it. The outcome of
// the run itself lives in summary.Status.
func (o *Orchestrator) Run(ctx context.Context) (summary schemas.RunSummary, err error) {
	rc := o.cfg.RunConfig()
	runID := o.newID()
	logger := observability.RunLogger(o.logger, runID)
	builder := reporting.NewSummaryBuilder(runID, rc.Mode, o.now)
	capturer := diagnostics.NewCapturer(o.store, rc.Site, logger)
	started := o.now()

	runCtx, cancel := context.WithTimeout(ctx, rc.Timeout())
	defer cancel()

	var driver Browser
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Run panicked.", zap.Any("panic", r), zap.Stack("stack"))
			builder.Fail(schemas.NewRunError(schemas.ErrCodeUnexpected, fmt.Errorf("panic: %v", r), "unexpected failure"))
		}
		if driver != nil {
			builder.AddDiagnostics(capturer.Capture(runCtx, driver, diagnostics.TagFinal))
			if cerr := driver.Close(); cerr != nil {
				logger.Warn("Failed to close browser cleanly.", zap.Error(cerr))
			}
		}
		summary, err = o.finish(ctx, builder, started, runID, logger)
	}()

	logger.Info("Run starting.",
		zap.String("mode", string(rc.Mode)),
		zap.String("auth_strategy", string(rc.EffectiveAuthStrategy())),
		zap.Int("max_actions", rc.ListingFilter.MaxActions))

	if !rc.Mode.Valid() {
		builder.Fail(schemas.NewRunError(schemas.ErrCodeConfig, nil, "unsupported mode %q", rc.Mode))
		return
	}

	d, lerr := o.launch(runCtx)
	if lerr != nil {
		builder.Fail(schemas.NewRunError(schemas.ErrCodeUnexpected, lerr, "browser could not be started"))
		return
	}
	driver = d

	gate := auth.NewGate(rc, o.store, logger, o.gateOpts...)
	if _, aerr := gate.EstablishSession(runCtx, driver); aerr != nil {
		logger.Error("Authentication failed.", zap.Error(aerr))
		builder.AddDiagnostics(capturer.Capture(runCtx, driver, TagAuthFailed))
		builder.Fail(aerr)
		return
	}

	sched := scheduler.New(rc, listings.NewDiscoverer(rc.Site, logger, o.tableWait), gate, o.metrics, logger, o.schedOpts...)
	out, serr := sched.Run(runCtx, driver)

	result := schemas.RunSummary{
		Status:             schemas.StatusOK,
		Mode:               rc.Mode,
		RepostFound:        out.RepostFound,
		RepostClicked:      len(out.ActedOn),
		ActedOn:            out.ActedOn,
		WouldActOn:         out.WouldActOn,
		Failures:           out.Failures,
		Unconfirmed:        out.Unconfirmed,
		VerificationBanner: out.VerificationBanner,
		Message:            outcomeMessage(rc.Mode, out),
	}
	if serr != nil {
		result.Status = schemas.StatusError
		result.ErrorCode = schemas.CodeOf(serr)
		result.Message = schemas.MessageOf(serr)
		if result.ErrorCode == schemas.ErrCodeSessionLost {
			result.Diagnostics = append(result.Diagnostics, capturer.Capture(runCtx, driver, TagSessionLost))
		}
		logger.Error("Action loop stopped.", zap.Error(serr))
	}
	builder.Finish(result)
	return
}

// finish persists the summary and publishes run metrics.
func (o *Orchestrator) finish(ctx context.Context, builder *reporting.SummaryBuilder, started time.Time, runID string, logger *zap.Logger) (schemas.RunSummary, error) {
	detached := context.WithoutCancel(ctx)
	summary, err := builder.Persist(detached, o.store)
	if err != nil {
		logger.Error("Failed to persist run summary.", zap.Error(err))
	}

	o.metrics.RunsCompleted.WithLabelValues(string(summary.Status), string(summary.ErrorCode)).Inc()
	o.metrics.RunDuration.Set(o.now().Sub(started).Seconds())
	pushCtx, cancel := context.WithTimeout(detached, pushTimeout)
	defer cancel()
	if perr := o.metrics.Push(pushCtx, o.cfg.Metrics(), runID); perr != nil {
		logger.Warn("Metrics push failed.", zap.Error(perr))
	}

	logger.Info("Run finished.",
		zap.String("status", string(summary.Status)),
		zap.String("error_code", string(summary.ErrorCode)),
		zap.Int("repost_found", summary.RepostFound),
		zap.Int("repost_clicked", summary.RepostClicked),
		zap.String("message", summary.Message))
	return summary, err
}

func outcomeMessage(mode schemas.Mode, out scheduler.Outcome) string {
	if mode == schemas.ModeDryRun {
		return fmt.Sprintf("dry run: %d eligible listing(s), nothing clicked", len(out.WouldActOn))
	}
	msg := fmt.Sprintf("reposted %d of %d eligible listing(s)", len(out.ActedOn), out.RepostFound)
	if n := len(out.Failures); n > 0 {
		msg += fmt.Sprintf("; %d click(s) failed", n)
	}
	return msg
}
