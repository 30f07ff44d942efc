package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-go/callbridge/pkg/bridge/config"
	"github.com/vango-go/callbridge/pkg/bridge/params"
)

func newSetProviderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-provider {aws|deepl}",
		Short: "Set the active translation provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if name != "aws" && name != "deepl" {
				return fail(cmd, fmt.Errorf("unsupported provider %q, want aws or deepl", name))
			}

			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fail(cmd, fmt.Errorf("load config: %w", err))
			}
			clients, err := loadAWSConfig(cmd.Context(), cfg)
			if err != nil {
				return fail(cmd, err)
			}

			if err := params.NewSSM(clients.ssm).Set(cmd.Context(), cfg.ProviderParamName, name); err != nil {
				return fail(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "translation provider set to %s (%s)\n", name, cfg.ProviderParamName)
			return nil
		},
	}
}
