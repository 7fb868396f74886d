package cmd

import (
	"github.com/naka-gawa/github-facts/internal/config"
	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Shows the GitHub login of the token in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := newSession(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.close()

		login, err := s.auth.CurrentUser(ctx, s.token)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), map[string]string{"login": login}, cfg.Format)
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
	whoamiCmd.Flags().String(config.KeyFormat, config.FormatJSON, "Output format: json or kv")
}
