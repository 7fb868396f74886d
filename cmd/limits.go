package cmd

import (
	"strconv"
	"time"

	"github.com/naka-gawa/github-facts/internal/config"
	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/naka-gawa/github-facts/internal/ratelimit"
	"github.com/spf13/cobra"
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Shows the remaining rate limit and the estimated cost of a collection",
	Example: `  github-facts limits
  github-facts limits --repositories 40 --kinds commits,issues --format kv`,
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

		usage, err := s.monitor.CheckLimits(ctx)
		if err != nil {
			return err
		}
		repoCount, _ := cmd.Flags().GetInt("repositories")
		est := ratelimit.EstimateCost(usage, repoCount, cfg.PerRepoEstimate, cfg.Kinds, time.Now())
		return writeReport(cmd.OutOrStdout(), limitFacts(usage, est), cfg.Format)
	},
}

// limitFacts flattens a rate limit snapshot and a cost estimate into report keys.
func limitFacts(usage domain.RateLimitUsage, est ratelimit.CostEstimate) map[string]string {
	facts := map[string]string{
		"estimate.calls":       strconv.Itoa(est.EstimatedCalls),
		"estimate.feasible":    strconv.FormatBool(est.Feasible),
		"estimate.waitSeconds": strconv.Itoa(int(est.WaitFor.Round(time.Second) / time.Second)),
	}
	for prefix, q := range map[string]domain.Quota{"rest": usage.REST, "graphql": usage.GraphQL} {
		facts[prefix+".limit"] = strconv.Itoa(q.Limit)
		facts[prefix+".remaining"] = strconv.Itoa(q.Remaining)
		if !q.ResetAt.IsZero() {
			facts[prefix+".resetAt"] = q.ResetAt.UTC().Format(time.RFC3339)
		}
	}
	return facts
}

func init() {
	rootCmd.AddCommand(limitsCmd)
	flags := limitsCmd.Flags()
	flags.Int("repositories", 1, "Number of repositories to estimate the cost for")
	flags.StringSlice(config.KeyKinds, nil, "Item kinds to estimate (default all)")
	flags.Int(config.KeyPerRepoEstimate, config.DefaultPerRepoEstimate, "Expected items per kind and repository")
	flags.String(config.KeyFormat, config.FormatJSON, "Output format: json or kv")
}
