package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/naka-gawa/github-facts/internal/config"
	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Collects repository data and outputs numeric facts",
	Long: `Collects commits, issues, pull requests, comments, reviews and releases for the
target repositories and outputs the aggregated facts as a flat JSON object
(or key=value lines with --format kv).

Targets are the union of --repo, the repositories of --org and the repositories
referenced by --project. Without any of them the repository of the checkout in
--dir (default: the current directory) is used.`,
	Example: `  github-facts facts --repo acme/api --since 2025/01/01
  github-facts facts --org acme --kinds commits,issues --format kv
  github-facts facts --project acme/3 --until 2025-03-31T00:00:00Z`,
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

		noProgress, _ := cmd.Flags().GetBool("no-progress")
		progress := &progressReporter{w: os.Stderr, enabled: !noProgress && !cfg.Verbose}

		report, err := s.aggregator().Aggregate(ctx, s.request(progress.report))
		progress.finish()
		if err != nil {
			return err
		}
		if report.Result.Incomplete {
			s.logger.Warn("collection did not finish before the deadline", zap.Int("failures", len(report.Result.Failures)))
		}
		return writeReport(cmd.OutOrStdout(), report.Facts, cfg.Format)
	},
}

// progressReporter draws one bar tick per finished repository on stderr.
// The bar is created on the first tick, once the number of targets is known.
type progressReporter struct {
	w       io.Writer
	enabled bool
	once    sync.Once
	bar     *progressbar.ProgressBar
}

func (p *progressReporter) report(repo domain.RepoRef, done, total int, err error) {
	if !p.enabled {
		return
	}
	p.once.Do(func() {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(20),
			progressbar.OptionSetDescription("[cyan]Collecting repositories[reset]"),
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]#[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: "-",
				BarStart:      "[",
				BarEnd:        "]",
			}))
	})
	_ = p.bar.Add(1)
}

func (p *progressReporter) finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	fmt.Fprintln(p.w)
}

func init() {
	rootCmd.AddCommand(factsCmd)
	flags := factsCmd.Flags()
	flags.StringSliceP(config.KeyRepo, "r", nil, "Target repository as owner/name (repeatable or comma separated)")
	flags.StringP(config.KeyOrg, "o", "", "Collect every repository of this organization")
	flags.Bool(config.KeyIncludeArchived, false, "Include archived repositories of --org")
	flags.String(config.KeyProject, "", "Collect the repositories referenced by a Project (v2) board, as owner/number")
	flags.String(config.KeyProjectOwner, string(domain.ProjectOwnerOrganization), "Owner type of --project: org or user")
	flags.String(config.KeySince, "", "Start of the window (YYYY/MM/DD or RFC3339)")
	flags.String(config.KeyUntil, "", "End of the window, inclusive (YYYY/MM/DD or RFC3339; default now)")
	flags.StringSlice(config.KeyKinds, nil, "Item kinds to collect (default all): commits, issues, pull_requests, issue_comments, reviews, review_comments, releases")
	flags.Int(config.KeyMaxItems, 0, "Maximum items per kind and repository (0 means no cap)")
	flags.Int(config.KeyConcurrency, config.DefaultConcurrency, "Repositories collected in parallel")
	flags.Duration(config.KeyTimeout, config.DefaultTimeout, "Hard deadline of the whole collection")
	flags.Int(config.KeyPerRepoEstimate, config.DefaultPerRepoEstimate, "Expected items per kind and repository, used to estimate the API cost")
	flags.Duration(config.KeyWatchInterval, config.DefaultWatchInterval, "How often the rate limit is re-checked during collection")
	flags.String(config.KeyFormat, config.FormatJSON, "Output format: json or kv")
	flags.String(config.KeyDir, ".", "Checkout used when no target is given")
	flags.Bool("no-progress", false, "Do not draw the progress bar")
}
