package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/naka-gawa/github-facts/internal/gateway"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// defaultRecovery is attached to failures that carry no instructions of their own.
var defaultRecovery = []string{
	"Run again with --verbose to see the failing request",
}

// ProgressFunc is called once per repository when its collection ends, with the
// number of repositories finished so far. err is nil for collected repositories.
type ProgressFunc func(repo domain.RepoRef, done, total int, err error)

// CollectOptions controls one multi-repository collection run.
type CollectOptions struct {
	Window      domain.Window
	Kinds       []domain.ItemKind
	MaxItems    int
	Concurrency int
	// Timeout bounds the whole run. Zero means no deadline beyond ctx.
	Timeout    time.Duration
	OnProgress ProgressFunc
}

// Collector fetches repository data sets concurrently.
type Collector struct {
	fetcher gateway.Fetcher
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewCollector creates a new Collector instance.
func NewCollector(fetcher gateway.Fetcher, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// CollectRepository fetches the metadata and every requested kind of one repository.
// Kinds are collected one after another in AllKinds order, under the canonical
// name GitHub reports, so every item carries the same repository tag.
func (c *Collector) CollectRepository(ctx context.Context, target domain.RepoRef, opts CollectOptions) (domain.RepositoryDataSet, error) {
	c.logger.Debug("collecting repository", zap.String("repo", target.String()))

	meta, err := c.fetcher.GetRepository(ctx, target)
	if err != nil {
		return domain.RepositoryDataSet{}, err
	}
	repo, err := domain.ParseRepoRef(meta.FullName)
	if err != nil {
		return domain.RepositoryDataSet{}, apperr.MalformedResponse("metadata of "+target.String(), err)
	}
	if repo.String() != target.String() {
		c.logger.Debug("using canonical repository name",
			zap.String("requested", target.String()), zap.String("canonical", repo.String()))
	}
	ds := domain.RepositoryDataSet{
		Repository:     meta,
		Commits:        []domain.Commit{},
		Issues:         []domain.Issue{},
		PullRequests:   []domain.PullRequest{},
		IssueComments:  []domain.IssueComment{},
		Reviews:        []domain.Review{},
		ReviewComments: []domain.ReviewComment{},
		Releases:       []domain.Release{},
		Truncated:      map[domain.ItemKind]bool{},
	}

	wanted := kindSet(opts.Kinds)
	list := gateway.ListOptions{Window: opts.Window, MaxItems: opts.MaxItems}

	for _, kind := range domain.AllKinds {
		if !wanted[kind] {
			continue
		}
		var truncated bool
		switch kind {
		case domain.KindCommits:
			ds.Commits, truncated, err = c.fetcher.ListCommits(ctx, repo, list)
		case domain.KindIssues:
			ds.Issues, truncated, err = c.fetcher.ListIssues(ctx, repo, list)
		case domain.KindPullRequests:
			ds.PullRequests, truncated, err = c.fetcher.ListPullRequests(ctx, repo, list)
		case domain.KindIssueComments:
			ds.IssueComments, truncated, err = c.fetcher.ListIssueComments(ctx, repo, list)
		case domain.KindReviews:
			pulls := ds.PullRequests
			if !wanted[domain.KindPullRequests] {
				// Reviews are listed per pull request, so the numbers are needed either way.
				pulls, _, err = c.fetcher.ListPullRequests(ctx, repo, list)
				if err != nil {
					return domain.RepositoryDataSet{}, err
				}
			}
			ds.Reviews, truncated, err = c.fetcher.ListReviews(ctx, repo, pullNumbers(pulls), list)
		case domain.KindReviewComments:
			ds.ReviewComments, truncated, err = c.fetcher.ListReviewComments(ctx, repo, list)
		case domain.KindReleases:
			ds.Releases, truncated, err = c.fetcher.ListReleases(ctx, repo, list)
		}
		if err != nil {
			return domain.RepositoryDataSet{}, err
		}
		if truncated {
			ds.Truncated[kind] = true
		}
	}

	ds.CollectedAt = c.now()
	return ds, nil
}

// CollectAll collects every repository with bounded concurrency.
// Repository-level failures are recorded and the run continues; auth and
// exhausted rate-limit errors cancel the run. When the timeout expires the
// repositories collected so far are returned with Incomplete set.
func (c *Collector) CollectAll(ctx context.Context, repos []domain.RepoRef, opts CollectOptions) (*domain.CollectionResult, error) {
	repos = dedupe(repos)
	result := &domain.CollectionResult{
		RunID:     c.newID(),
		Window:    opts.Window,
		DataSets:  []domain.RepositoryDataSet{},
		Failures:  []domain.RepositoryFailure{},
		StartedAt: c.now(),
	}
	c.logger.Info("starting collection",
		zap.String("runId", result.RunID), zap.Int("repositories", len(repos)), zap.Int("concurrency", opts.Concurrency))

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var (
		mu       sync.Mutex
		done     int
		datasets = make([]*domain.RepositoryDataSet, len(repos))
	)

	eg, egCtx := errgroup.WithContext(runCtx)
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 1
	}
	eg.SetLimit(limit)

	for i, repo := range repos {
		eg.Go(func() error {
			ds, err := c.CollectRepository(egCtx, repo, opts)
			mu.Lock()
			done++
			finished := done
			mu.Unlock()
			if opts.OnProgress != nil {
				opts.OnProgress(repo, finished, len(repos), err)
			}
			if err == nil {
				datasets[i] = &ds
				return nil
			}
			if isFatal(err) {
				c.logger.Error("collection aborted", zap.String("repo", repo.String()), zap.Error(err))
				return err
			}
			failure := c.failureFor(runCtx, repo, err)
			c.logger.Warn("repository failed",
				zap.String("repo", repo.String()), zap.String("kind", string(failure.Kind)), zap.Error(err))
			mu.Lock()
			result.Failures = append(result.Failures, failure)
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, apperr.Cancelled(ctx.Err())
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.Incomplete = true
	}

	// Renamed repositories resolve to the same canonical name; keep the first.
	collected := make(map[string]bool, len(datasets))
	for i, ds := range datasets {
		if ds == nil {
			continue
		}
		key := strings.ToLower(ds.Repository.FullName)
		if collected[key] {
			c.logger.Info("skipping repository collected under another name",
				zap.String("requested", repos[i].String()), zap.String("canonical", ds.Repository.FullName))
			continue
		}
		collected[key] = true
		result.DataSets = append(result.DataSets, *ds)
	}
	sort.Slice(result.DataSets, func(i, j int) bool {
		return result.DataSets[i].Repository.FullName < result.DataSets[j].Repository.FullName
	})
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Repository < result.Failures[j].Repository
	})
	result.FinishedAt = c.now()

	c.logger.Info("completed collection",
		zap.String("runId", result.RunID),
		zap.Int("collected", len(result.DataSets)),
		zap.Int("failed", len(result.Failures)),
		zap.Bool("incomplete", result.Incomplete))
	return result, nil
}

// failureFor records err against repo. Errors caused by the run deadline are
// reported as timeouts regardless of how the request surfaced them.
func (c *Collector) failureFor(runCtx context.Context, repo domain.RepoRef, err error) domain.RepositoryFailure {
	expired := errors.Is(runCtx.Err(), context.DeadlineExceeded) && apperr.KindOf(err) == ""
	if expired || errors.Is(err, context.DeadlineExceeded) {
		err = apperr.TimedOut(repo.String(), err)
	}
	kind := domain.FailureOther
	switch apperr.KindOf(err) {
	case apperr.KindRepositoryAccess:
		kind = domain.FailureAccess
	case apperr.KindDataShape:
		kind = domain.FailureDataShape
	case apperr.KindTimeout:
		kind = domain.FailureTimeout
	}
	recovery := apperr.RecoveryOf(err)
	if len(recovery) == 0 {
		recovery = defaultRecovery
	}
	return domain.RepositoryFailure{
		Repository: repo.String(),
		Kind:       kind,
		Reason:     err.Error(),
		Recovery:   recovery,
	}
}

// isFatal reports whether err should stop the whole run.
func isFatal(err error) bool {
	return apperr.Is(err, apperr.KindAuth) || apperr.Is(err, apperr.KindRateLimit) || apperr.Is(err, apperr.KindConfig)
}

func kindSet(kinds []domain.ItemKind) map[domain.ItemKind]bool {
	if len(kinds) == 0 {
		kinds = domain.AllKinds
	}
	set := make(map[domain.ItemKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}

func pullNumbers(pulls []domain.PullRequest) []int {
	numbers := make([]int, 0, len(pulls))
	for _, p := range pulls {
		numbers = append(numbers, p.Number)
	}
	return numbers
}

// dedupe drops repeated repositories, ignoring letter case. The first spelling wins.
func dedupe(repos []domain.RepoRef) []domain.RepoRef {
	seen := make(map[string]struct{}, len(repos))
	out := make([]domain.RepoRef, 0, len(repos))
	for _, r := range repos {
		if _, ok := seen[r.Key()]; ok {
			continue
		}
		seen[r.Key()] = struct{}{}
		out = append(out, r)
	}
	return out
}
