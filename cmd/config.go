// File: cmd/config.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/relist-cli/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	var strict bool

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration (secrets omitted).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Decode(a.v)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			w := cmd.OutOrStdout()
			if _, err := w.Write(out); err != nil {
				return err
			}

			if verr := cfg.Validate(); verr != nil {
				fmt.Fprintf(w, "# invalid: %v\n", verr)
				if strict {
					return verr
				}
				return nil
			}
			fmt.Fprintln(w, "# valid")
			return nil
		},
	}
	configCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the configuration is invalid")
	return configCmd
}
