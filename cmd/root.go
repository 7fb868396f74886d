// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/config"
	"github.com/naka-gawa/github-facts/internal/ratelimit"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "github-facts",
	Short: "A CLI tool to collect GitHub repository data and report numeric facts.",
	Long: `github-facts collects commits, issues, pull requests, comments, reviews and
releases from one or many GitHub repositories within the rate limit budget, and
reports strictly numeric facts about them as a flat key/value map.
Repositories can be named directly, taken from an organization or a Project (v2)
board, or default to the repository of the current checkout.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		return config.LoadEnvFile(envFile)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// An interrupt cancels the running command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return apperr.InvalidConfig(err)
	})

	// Persistent flags are available to all commands.
	rootCmd.PersistentFlags().BoolP(config.KeyVerbose, "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().String(config.KeyLogLevel, "info", "Log level when verbose: debug, info, warn or error")
	rootCmd.PersistentFlags().String("env-file", "", "Load environment variables from this file (default: .env when present)")
	rootCmd.PersistentFlags().Duration(config.KeyRetryBase, ratelimit.DefaultBackoff.BaseDelay, "First retry delay")
	rootCmd.PersistentFlags().Float64(config.KeyRetryMultiplier, ratelimit.DefaultBackoff.Multiplier, "Retry delay multiplier")
	rootCmd.PersistentFlags().Duration(config.KeyRetryMax, ratelimit.DefaultBackoff.MaxDelay, "Maximum retry delay")
	rootCmd.PersistentFlags().Int(config.KeyRetries, ratelimit.DefaultBackoff.MaxRetries, "Maximum retries of a failing request")
}
