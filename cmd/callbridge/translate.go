package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-go/callbridge/pkg/bridge/config"
	"github.com/vango-go/callbridge/pkg/bridge/params"
	"github.com/vango-go/callbridge/pkg/bridge/translate"
)

// newTranslateCmd is a direct translation check against the active
// provider, useful when validating credentials and the provider parameter.
func newTranslateCmd() *cobra.Command {
	var source, target string

	cmd := &cobra.Command{
		Use:   "translate [text...]",
		Short: "Translate text with the active provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fail(cmd, fmt.Errorf("load config: %w", err))
			}
			clients, err := loadAWSConfig(cmd.Context(), cfg)
			if err != nil {
				return fail(cmd, err)
			}
			src := params.NewSSM(clients.ssm)

			selector, err := buildSelector(cfg, src, newLogger(), translate.NewAWS(clients.translate))
			if err != nil {
				return fail(cmd, err)
			}
			_ = selector.Refresh(cmd.Context())

			res, err := selector.Translate(cmd.Context(), strings.Join(args, " "), source, target)
			if err != nil {
				return fail(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "provider: %s\n%s\n", selector.Current(), res.TranslatedText)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "en", "source language code")
	cmd.Flags().StringVar(&target, "target", "es", "target language code")
	return cmd
}
