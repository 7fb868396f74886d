// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/naka-gawa/github-facts/internal/facts"
	"github.com/naka-gawa/github-facts/internal/gateway"
	"github.com/naka-gawa/github-facts/internal/gitcli"
	"github.com/naka-gawa/github-facts/internal/ratelimit"
	"go.uber.org/zap"
)

// LimitChecker is the part of the rate limit monitor the pipeline needs.
type LimitChecker interface {
	EnsureFeasible(ctx context.Context, repoCount, perRepoItemEstimate int, kinds []domain.ItemKind) (ratelimit.CostEstimate, error)
	Watch(ctx context.Context, interval time.Duration) (stop func())
}

// RepoResolver finds the repository of a local checkout.
type RepoResolver interface {
	RepoView(ctx context.Context, dir string) (gitcli.RepoInfo, error)
}

// Request describes one aggregation run.
type Request struct {
	Repos           []domain.RepoRef
	Org             string
	IncludeArchived bool
	Project         *domain.ProjectRef
	// Dir is the checkout used when no other target is given.
	Dir string

	Window          domain.Window
	Kinds           []domain.ItemKind
	MaxItems        int
	Concurrency     int
	Timeout         time.Duration
	PerRepoEstimate int
	WatchInterval   time.Duration
	OnProgress      ProgressFunc
}

// Aggregator is the use case for aggregating GitHub facts.
// It orchestrates target resolution, collection and fact computation.
type Aggregator struct {
	fetcher   gateway.Fetcher
	limits    LimitChecker
	resolver  RepoResolver
	collector *Collector
	logger    *zap.Logger
	now       func() time.Time
}

// NewAggregator creates a new Aggregator instance. limits and resolver may be nil,
// which skips the cost check and the checkout fallback.
func NewAggregator(fetcher gateway.Fetcher, limits LimitChecker, resolver RepoResolver, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		fetcher:   fetcher,
		limits:    limits,
		resolver:  resolver,
		collector: NewCollector(fetcher, logger),
		logger:    logger,
		now:       time.Now,
	}
}

// Aggregate performs the main business logic: resolve targets, check the
// rate limit budget, collect, index and build the fact report.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) (*domain.FactReport, error) {
	a.logger.Info("starting aggregation")

	targets, project, err := a.ResolveTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	window := req.Window
	if window.Until.IsZero() {
		window.Until = a.now().UTC()
	}

	if a.limits != nil {
		estimate, err := a.limits.EnsureFeasible(ctx, len(targets), req.PerRepoEstimate, req.Kinds)
		if err != nil {
			return nil, err
		}
		a.logger.Info("rate limit budget checked",
			zap.Int("estimatedCalls", estimate.EstimatedCalls), zap.Int("remaining", estimate.Remaining))
		if req.WatchInterval > 0 {
			stop := a.limits.Watch(ctx, req.WatchInterval)
			defer stop()
		}
	}

	result, err := a.collector.CollectAll(ctx, targets, CollectOptions{
		Window:      window,
		Kinds:       req.Kinds,
		MaxItems:    req.MaxItems,
		Concurrency: req.Concurrency,
		Timeout:     req.Timeout,
		OnProgress:  req.OnProgress,
	})
	if err != nil {
		return nil, err
	}

	flat := Flatten(result.DataSets)
	indexes, err := BuildIndexes(flat)
	if err != nil {
		return nil, err
	}

	reportFacts, err := facts.BuildReport(facts.ReportInput{
		Result:    result,
		Flat:      flat,
		Indexes:   indexes,
		RepoStats: BuildRepoStats(flat, indexes),
		Project:   project,
	})
	if err != nil {
		return nil, apperr.MalformedResponse("collected items", err)
	}

	a.logger.Info("aggregation complete", zap.Int("facts", len(reportFacts)))
	return &domain.FactReport{Facts: reportFacts, Result: result, Project: project}, nil
}

// ResolveTargets returns the repositories to collect: the explicit ones, those of
// the organization and those referenced by the project. With none of these the
// repository of the local checkout is used.
func (a *Aggregator) ResolveTargets(ctx context.Context, req Request) ([]domain.RepoRef, *domain.Project, error) {
	targets := append([]domain.RepoRef{}, req.Repos...)

	if req.Org != "" {
		repos, err := a.fetcher.ListOrgRepositories(ctx, req.Org, req.IncludeArchived)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("resolved organization repositories", zap.String("org", req.Org), zap.Int("count", len(repos)))
		targets = append(targets, repos...)
	}

	var project *domain.Project
	if req.Project != nil {
		var err error
		project, err = a.fetcher.FetchProject(ctx, *req.Project)
		if err != nil {
			return nil, nil, err
		}
		for _, name := range project.Repositories() {
			ref, err := domain.ParseRepoRef(name)
			if err != nil {
				return nil, nil, apperr.MalformedResponse("project "+req.Project.String(), err)
			}
			targets = append(targets, ref)
		}
	}

	if len(targets) == 0 && req.Org == "" && req.Project == nil {
		if a.resolver == nil {
			return nil, nil, apperr.InvalidConfig(errors.New("no repository given: use --repo, --org or --project"))
		}
		info, err := a.resolver.RepoView(ctx, req.Dir)
		if err != nil {
			return nil, nil, apperr.InvalidConfig(fmt.Errorf("no repository given and the current directory is not a GitHub checkout: %w", err))
		}
		ref, err := domain.ParseRepoRef(info.NameWithOwner)
		if err != nil {
			return nil, nil, apperr.InvalidConfig(err)
		}
		a.logger.Info("using repository of the current checkout", zap.String("repo", ref.String()))
		targets = append(targets, ref)
	}

	return dedupe(targets), project, nil
}

// BuildRepoStats merges the per-repository counts and review lead times into a
// summary per repository, sorted by name.
func BuildRepoStats(flat domain.FlatCollections, idx *domain.OptimalIndexes) []*domain.RepoStats {
	statsMap := make(map[string]*domain.RepoStats)

	for repoName, refs := range idx.ByRepository {
		statsMap[repoName] = &domain.RepoStats{
			Name:         repoName,
			Commits:      len(refs.Commits),
			Issues:       len(refs.Issues),
			PullRequests: len(refs.PullRequests),
			Reviews:      len(refs.Reviews),
		}
	}

	for _, data := range facts.PullRequestReviewTimes(flat.PullRequests, flat.Reviews) {
		repoStat, ok := statsMap[data.Repository]
		if !ok {
			repoStat = &domain.RepoStats{Name: data.Repository}
			statsMap[data.Repository] = repoStat
		}
		// Duration from creation to the last review.
		if d := data.LeadTimeToLastReview(); d >= 0 {
			repoStat.LeadTimeToLastReviewSeconds = append(repoStat.LeadTimeToLastReviewSeconds, d.Seconds())
		}
	}

	sortedStats := make([]*domain.RepoStats, 0, len(statsMap))
	for _, repoStat := range statsMap {
		sortedStats = append(sortedStats, repoStat)
	}
	sort.Slice(sortedStats, func(i, j int) bool {
		return sortedStats[i].Name < sortedStats[j].Name
	})
	return sortedStats
}
