// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/config"
	"github.com/xkilldash9x/relist-cli/internal/observability"
)

// app holds the state shared by one command tree invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCommand builds a fresh command tree with its own viper instance, so
// flags and config never leak between invocations.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:          "relist-cli",
		Short:        "Relist renews classified-ad listings by driving a real browser session.",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// This runs before any subcommand, setting up config and logging.
			config.SetDefaults(a.v)
			if err := config.ConfigureViper(a.v, a.cfgFile); err != nil {
				return err
			}

			cfg, err := config.Decode(a.v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "relist-cli"})
				return fmt.Errorf("failed to load config: %w", err)
			}
			observability.InitializeLogger(cfg.Logger())

			observability.GetLogger().Debug("Starting relist-cli", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree under ctx. Command errors are printed by
// cobra; the caller decides the exit code.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	return NewRootCommand().ExecuteContext(ctx)
}
