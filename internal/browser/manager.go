// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/config"
)

const shutdownGracePeriod = 10 * time.Second

// Launch starts a browser process with a single tab and returns the session
// driving it. The caller owns the session and must Close it exactly once.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	log := logger.Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), execOptions(cfg)...)

	ctxOpts := []chromedp.ContextOption{
		chromedp.WithErrorf(log.Sugar().Errorf),
	}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(log.Sugar().Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	// The first Run starts the browser and attaches to the initial tab.
	startCtx, startCancel := CombineContext(tabCtx, ctx)
	defer startCancel()
	if err := chromedp.Run(startCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.Info("Browser started.", zap.Bool("headless", cfg.Headless))
	return &Session{
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		logger:      log,
	}, nil
}

// execOptions builds the allocator options explicitly rather than relying on
// chromedp.DefaultExecAllocatorOptions, so headless mode is always a choice.
func execOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.WindowW > 0 && cfg.WindowH > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowW, cfg.WindowH))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	// Extra flags from the config file, either "name" or "name=value".
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// Session is one browser tab. It implements schemas.PageDriver.
type Session struct {
	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	closeOnce sync.Once
}

// Close shuts the browser down. Safe to call more than once; only the first
// call has an effect.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.ctx) }()

		select {
		case err = <-done:
		case <-time.After(shutdownGracePeriod):
			err = fmt.Errorf("browser did not shut down within %s", shutdownGracePeriod)
		}
		s.tabCancel()
		s.allocCancel()

		if err != nil {
			s.logger.Warn("Browser shutdown was not clean.", zap.Error(err))
		} else {
			s.logger.Info("Browser closed.")
		}
	})
	return err
}

// op derives a context bound to both the tab and the caller.
func (s *Session) op(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	if timeout <= 0 {
		return opCtx, opCancel
	}
	tCtx, tCancel := context.WithTimeout(opCtx, timeout)
	return tCtx, func() {
		tCancel()
		opCancel()
	}
}
