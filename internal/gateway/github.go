// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/naka-gawa/github-facts/internal/ratelimit"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
)

// ListOptions bounds a list call.
type ListOptions struct {
	Window domain.Window
	// MaxItems caps the returned items; 0 means no cap.
	MaxItems int
}

// Fetcher defines the behavior of a gateway for fetching information from GitHub.
// List methods return the items inside the window and whether the cap cut the list short.
type Fetcher interface {
	GetRepository(ctx context.Context, repo domain.RepoRef) (domain.Repository, error)
	ListCommits(ctx context.Context, repo domain.RepoRef, opts ListOptions) ([]domain.Commit, bool, error)
	ListIssues(ctx context.Context, repo domain.RepoRef, opts ListOptions) ([]domain.Issue, bool, error)
	ListPullRequests(ctx context.Context, repo domain.RepoRef, opts ListOptions) ([]domain.PullRequest, bool, error)
	ListIssueComments(ctx context.Context, repo domain.RepoRef, opts ListOptions) ([]domain.IssueComment, bool, error)
	// ListReviews fetches the reviews of the given pull requests, one request chain per pull request.
	ListReviews(ctx context.Context, repo domain.RepoRef, pulls []int, opts ListOptions) ([]domain.Review, bool, error)
	ListReviewComments(ctx context.Context, repo domain.RepoRef, opts ListOptions) ([]domain.ReviewComment, bool, error)
	ListReleases(ctx context.Context, repo domain.RepoRef, opts ListOptions) ([]domain.Release, bool, error)
	ListOrgRepositories(ctx context.Context, org string, includeArchived bool) ([]domain.RepoRef, error)
	FetchProject(ctx context.Context, ref domain.ProjectRef) (*domain.Project, error)
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	retrier       *ratelimit.Retrier
	logger        *zap.Logger
}

// Options configures NewGitHubGateway.
type Options struct {
	// Budget is shared by every request of the run. Required.
	Budget  *ratelimit.Budget
	Backoff ratelimit.Backoff
	Logger  *zap.Logger
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
// Requests flow through oauth2 → shared budget → secondary-limit waiter → network.
func NewGitHubGateway(token string, opts Options) (*GitHubGateway, error) {
	if opts.Budget == nil {
		return nil, fmt.Errorf("a rate limit budget is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	retrier, err := ratelimit.NewRetrier(opts.Backoff, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("invalid backoff policy: %w", err)
	}

	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   ratelimit.NewTransport(rateLimitWaiter, opts.Budget, opts.Logger),
			Source: ts,
		},
	}
	return &GitHubGateway{
		restClient:    github.NewClient(httpClient),
		graphqlClient: githubv4.NewClient(httpClient),
		retrier:       retrier,
		logger:        opts.Logger,
	}, nil
}

// REST exposes the REST client sharing this gateway's transport, for the rate limit monitor.
func (g *GitHubGateway) REST() *github.Client {
	return g.restClient
}
