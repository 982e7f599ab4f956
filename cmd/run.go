// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/api/schemas"
	"github.com/xkilldash9x/relist-cli/internal/browser"
	"github.com/xkilldash9x/relist-cli/internal/config"
	"github.com/xkilldash9x/relist-cli/internal/observability"
	"github.com/xkilldash9x/relist-cli/internal/orchestrator"
	"github.com/xkilldash9x/relist-cli/internal/reporting"
	"github.com/xkilldash9x/relist-cli/internal/store"
)

// Injectable for tests.
var (
	launchBrowser = func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (orchestrator.Browser, error) {
		return browser.Launch(ctx, cfg, logger)
	}
	openStore = store.Open
)

// runFlags maps command line flags onto config keys.
var runFlags = map[string]string{
	"mode":          "run.mode",
	"max-actions":   "listing_filter.max_actions",
	"title":         "listing_filter.title_includes",
	"status":        "listing_filter.status_in",
	"timeout":       "run.timeout_sec",
	"headless":      "browser.headless",
	"manual-login":  "run.manual_login",
	"auth-strategy": "run.auth_strategy",
	"store":         "store.backend",
}

func newRunCmd(a *app) *cobra.Command {
	var output, format string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Sign in, find renewable listings and renew them (or list them in dry-run mode).",
		Long: `Runs a single relist pass: establishes an authenticated session, discovers
the listings whose repost control is available, filters them and, in repost
mode, renews up to --max-actions of them with randomized pacing.

A run summary is always persisted to the store and printed. The process exits
non-zero only when the run could not be started at all.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for flag, key := range runFlags {
				if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return fmt.Errorf("failed to bind flag %s: %w", flag, err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelist(cmd, a, format, output)
		},
	}

	f := runCmd.Flags()
	f.String("mode", string(schemas.ModeDryRun), "run mode: dry-run or repost")
	f.Int("max-actions", 5, "maximum number of repost attempts in one run")
	f.StringSlice("title", nil, "only act on listings whose title contains one of these substrings")
	f.StringSlice("status", nil, "only act on listings in one of these statuses")
	f.Int("timeout", 180, "deadline for the whole run, in seconds")
	f.Bool("headless", true, "run the browser without a visible window")
	f.Bool("manual-login", false, "wait for the operator to sign in by hand (local runs only)")
	f.String("auth-strategy", string(schemas.AuthCredentials), "credentials or cookies")
	f.String("store", config.StoreBackendFile, "store backend: file, sqlite or postgres")
	f.StringVarP(&output, "output", "o", "", "write the run summary to this file (default stdout)")
	f.StringVarP(&format, "format", "f", "text", "summary format: text or json")

	return runCmd
}

// runRelist wires the run's dependencies and executes it. Only failures that
// prevent the run from starting are returned; run outcomes live in the summary.
func runRelist(cmd *cobra.Command, a *app, format, output string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		return err
	}

	reporter, err := newReporter(cmd, format, output)
	if err != nil {
		return err
	}
	defer reporter.Close()

	kv, err := openStore(ctx, cfg.Store(), logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if cerr := kv.Close(); cerr != nil {
			logger.Warn("Failed to close store.", zap.Error(cerr))
		}
	}()

	launch := func(ctx context.Context) (orchestrator.Browser, error) {
		return launchBrowser(ctx, cfg.Browser(), logger)
	}
	orch, err := orchestrator.New(cfg, kv, launch, logger)
	if err != nil {
		return err
	}

	summary, err := orch.Run(ctx)
	if err != nil {
		// The run happened; only its durable record is missing.
		logger.Error("Run summary could not be persisted.", zap.Error(err))
	}
	if werr := reporter.Write(&summary); werr != nil {
		logger.Error("Failed to write run summary.", zap.Error(werr))
	}
	return nil
}

func newReporter(cmd *cobra.Command, format, output string) (reporting.Reporter, error) {
	if output == "" || output == "stdout" {
		if err := reporting.CheckFormat(format); err != nil {
			return nil, err
		}
		// Hide any Close method so the reporter never closes the process's stdout.
		return reporting.NewWithWriter(format, struct{ io.Writer }{cmd.OutOrStdout()}), nil
	}
	return reporting.New(format, output)
}
