package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/domain"
	"go.uber.org/zap"
)

// PageSize is the maximum page size of the GitHub REST API.
const PageSize = 100

// Monitor reads the REST and GraphQL budgets and decides whether a run is affordable.
type Monitor struct {
	client  *github.Client
	budget  *Budget
	retrier *Retrier
	logger  *zap.Logger
	now     func() time.Time
}

// NewMonitor creates a Monitor that seeds budget from the /rate_limit endpoint.
// A nil retrier uses DefaultBackoff.
func NewMonitor(client *github.Client, budget *Budget, retrier *Retrier, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retrier == nil {
		retrier, _ = NewRetrier(DefaultBackoff, logger)
	}
	return &Monitor{client: client, budget: budget, retrier: retrier, logger: logger, now: time.Now}
}

// CheckLimits fetches the current usage of both pools. The call itself is not billed.
func (m *Monitor) CheckLimits(ctx context.Context) (domain.RateLimitUsage, error) {
	var limits *github.RateLimits
	err := m.retrier.Do(ctx, "GET /rate_limit", func(ctx context.Context) error {
		var err error
		limits, _, err = m.client.RateLimit.Get(ctx)
		return err
	})
	if err != nil {
		return domain.RateLimitUsage{}, classifyLimitsError(err)
	}

	usage := domain.RateLimitUsage{ObservedAt: m.now()}
	if limits.Core != nil {
		usage.REST = quotaFromRate(limits.Core)
		m.budget.Observe(domain.PoolCore, usage.REST)
	}
	if limits.GraphQL != nil {
		usage.GraphQL = quotaFromRate(limits.GraphQL)
		m.budget.Observe(domain.PoolGraphQL, usage.GraphQL)
	}
	m.logger.Debug("rate limits checked",
		zap.Int("rest_remaining", usage.REST.Remaining),
		zap.Int("graphql_remaining", usage.GraphQL.Remaining))
	return usage, nil
}

func classifyLimitsError(err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Cancelled(err)
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnauthorized {
		return apperr.InvalidToken(err)
	}
	return apperr.Unavailable("rate limit status", err)
}

func quotaFromRate(r *github.Rate) domain.Quota {
	return domain.Quota{Limit: r.Limit, Remaining: r.Remaining, ResetAt: r.Reset.Time.UTC()}
}

// CostEstimate is the predicted REST cost of a collection run.
type CostEstimate struct {
	EstimatedCalls int
	Remaining      int
	Feasible       bool
	ResetAt        time.Time
	WaitFor        time.Duration
}

// EstimateCost predicts the REST calls needed for repoCount repositories with
// about perRepoItemEstimate items of every enabled kind. Each repository costs one
// metadata call plus the pages of every list kind; reviews are fetched per pull
// request, so they cost one call per estimated pull request.
func EstimateCost(usage domain.RateLimitUsage, repoCount, perRepoItemEstimate int, kinds []domain.ItemKind, now time.Time) CostEstimate {
	if perRepoItemEstimate < 0 {
		perRepoItemEstimate = 0
	}
	pages := (perRepoItemEstimate + PageSize - 1) / PageSize
	if pages < 1 {
		pages = 1
	}

	perRepo := 1
	for _, k := range kinds {
		if k == domain.KindReviews {
			perRepo += perRepoItemEstimate
			continue
		}
		perRepo += pages
	}

	est := CostEstimate{
		EstimatedCalls: perRepo * repoCount,
		Remaining:      usage.REST.Remaining,
		ResetAt:        usage.REST.ResetAt,
	}
	est.Feasible = est.EstimatedCalls <= est.Remaining
	if !est.Feasible && est.ResetAt.After(now) {
		est.WaitFor = est.ResetAt.Sub(now)
	}
	return est
}

// EnsureFeasible checks the limits and fails fast, before any collection starts,
// when the estimated cost exceeds the remaining REST budget.
func (m *Monitor) EnsureFeasible(ctx context.Context, repoCount, perRepoItemEstimate int, kinds []domain.ItemKind) (CostEstimate, error) {
	usage, err := m.CheckLimits(ctx)
	if err != nil {
		return CostEstimate{}, err
	}
	now := m.now()
	est := EstimateCost(usage, repoCount, perRepoItemEstimate, kinds, now)
	m.logger.Info("estimated collection cost",
		zap.Int("repositories", repoCount),
		zap.Int("estimated_calls", est.EstimatedCalls),
		zap.Int("remaining", est.Remaining),
		zap.Bool("feasible", est.Feasible))
	if !est.Feasible {
		cause := fmt.Errorf("estimated %d calls but only %d remain", est.EstimatedCalls, est.Remaining)
		return est, apperr.RateLimited(est.ResetAt, now, cause)
	}
	return est, nil
}

// Watch re-checks the limits every interval until ctx is done or stop is called.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				usage, err := m.CheckLimits(ctx)
				if err != nil {
					if ctx.Err() == nil {
						m.logger.Warn("periodic rate limit check failed", zap.Error(err))
					}
					continue
				}
				if usage.REST.Limit > 0 && usage.REST.Remaining < usage.REST.Limit/10 {
					m.logger.Warn("REST budget running low",
						zap.Int("remaining", usage.REST.Remaining),
						zap.Time("reset_at", usage.REST.ResetAt))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
