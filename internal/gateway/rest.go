package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/naka-gawa/github-facts/internal/ratelimit"
	"go.uber.org/zap"
)

var timeNow = time.Now

// GetRepository fetches the repository metadata.
func (g *GitHubGateway) GetRepository(ctx context.Context, repo domain.RepoRef) (domain.Repository, error) {
	var raw json.RawMessage
	if _, err := g.getJSON(ctx, fmt.Sprintf("repos/%s/%s", repo.Owner, repo.Name), &raw); err != nil {
		return domain.Repository{}, classify(repo, "metadata", err)
	}
	r, err := decodeRepository(raw)
	if err != nil {
		return domain.Repository{}, apperr.MalformedResponse(fmt.Sprintf("metadata of %s", repo), err)
	}
	return r, nil
}

// ListCommits lists default branch commits. The order is topological rather than
// strictly chronological, so the window is applied server side and per item but
// never ends the walk early.
func (g *GitHubGateway) ListCommits(ctx context.Context, repo domain.RepoRef, opts ListOptions) ([]domain.Commit, bool, error) {
	q := url.Values{}
	setWindow(q, opts.Window, true)
	return paginate(ctx, g, repo, listSpec[domain.Commit]{
		kind:            domain.KindCommits,
		path:            fmt.Sprintf("repos/%s/%s/commits", repo.Owner, repo.Name),
		query:           q,
		emptyOnConflict: true,
		decode:          commitDecoder(repo.String()),
	}, opts)
}

// ListIssues lists issues of every state, most recently updated first.
func (g *GitHubGateway) ListIssues(ctx context.Context, repo domain.RepoRef, opts ListOptions) ([]domain.Issue, bool, error) {
	q := url.Values{"state": {"all"}, "sort": {"updated"}, "direction": {"desc"}}
	setWindow(q, opts.Window, false)
	return paginate(ctx, g, repo, listSpec[domain.Issue]{
		kind:        domain.KindIssues,
		path:        fmt.Sprintf("repos/%s/%s/issues", repo.Owner, repo.Name),
		query:       q,
		newestFirst: true,
		decode:      issueDecoder(repo.String()),
	}, opts)
}

// ListPullRequests lists pull requests of every state, most recently updated first.
func (g *GitHubGateway) ListPullRequests(ctx context.Context, repo domain.RepoRef, opts ListOptions) ([]domain.PullRequest, bool, error) {
	q := url.Values{"state": {"all"}, "sort": {"updated"}, "direction": {"desc"}}
	return paginate(ctx, g, repo, listSpec[domain.PullRequest]{
		kind:        domain.KindPullRequests,
		path:        fmt.Sprintf("repos/%s/%s/pulls", repo.Owner, repo.Name),
		query:       q,
		newestFirst: true,
		decode:      pullRequestDecoder(repo.String()),
	}, opts)
}

// ListIssueComments lists conversation comments of issues and pull requests.
func (g *GitHubGateway) ListIssueComments(ctx context.Context, repo domain.RepoRef, opts ListOptions) ([]domain.IssueComment, bool, error) {
	q := url.Values{"sort": {"updated"}, "direction": {"desc"}}
	setWindow(q, opts.Window, false)
	return paginate(ctx, g, repo, listSpec[domain.IssueComment]{
		kind:        domain.KindIssueComments,
		path:        fmt.Sprintf("repos/%s/%s/issues/comments", repo.Owner, repo.Name),
		query:       q,
		newestFirst: true,
		decode:      issueCommentDecoder(repo.String()),
	}, opts)
}

// ListReviews lists the submitted reviews of each pull request in turn.
// The cap applies to the total across pull requests.
func (g *GitHubGateway) ListReviews(ctx context.Context, repo domain.RepoRef, pulls []int, opts ListOptions) ([]domain.Review, bool, error) {
	reviews := []domain.Review{}
	for _, n := range pulls {
		perPull := opts
		if opts.MaxItems > 0 {
			perPull.MaxItems = opts.MaxItems - len(reviews)
			if perPull.MaxItems <= 0 {
				// Cap filled by earlier pulls; the rest may still hold reviews.
				return reviews, true, nil
			}
		}
		got, truncated, err := paginate(ctx, g, repo, listSpec[domain.Review]{
			kind:   domain.KindReviews,
			path:   fmt.Sprintf("repos/%s/%s/pulls/%d/reviews", repo.Owner, repo.Name, n),
			decode: reviewDecoder(repo.String(), n),
		}, perPull)
		if err != nil {
			return nil, false, err
		}
		reviews = append(reviews, got...)
		if truncated {
			return reviews, true, nil
		}
	}
	return reviews, false, nil
}

// ListReviewComments lists inline review comments, most recently updated first.
func (g *GitHubGateway) ListReviewComments(ctx context.Context, repo domain.RepoRef, opts ListOptions) ([]domain.ReviewComment, bool, error) {
	q := url.Values{"sort": {"updated"}, "direction": {"desc"}}
	setWindow(q, opts.Window, false)
	return paginate(ctx, g, repo, listSpec[domain.ReviewComment]{
		kind:        domain.KindReviewComments,
		path:        fmt.Sprintf("repos/%s/%s/pulls/comments", repo.Owner, repo.Name),
		query:       q,
		newestFirst: true,
		decode:      reviewCommentDecoder(repo.String()),
	}, opts)
}

// ListReleases lists releases. Drafts sort ahead of published releases, so the
// window filters per item only.
func (g *GitHubGateway) ListReleases(ctx context.Context, repo domain.RepoRef, opts ListOptions) ([]domain.Release, bool, error) {
	return paginate(ctx, g, repo, listSpec[domain.Release]{
		kind:   domain.KindReleases,
		path:   fmt.Sprintf("repos/%s/%s/releases", repo.Owner, repo.Name),
		decode: releaseDecoder(repo.String()),
	}, opts)
}

// ListOrgRepositories lists the repositories of an organization, sorted by name.
func (g *GitHubGateway) ListOrgRepositories(ctx context.Context, org string, includeArchived bool) ([]domain.RepoRef, error) {
	g.logger.Info("listing organization repositories", zap.String("org", org))
	opts := &github.RepositoryListByOrgOptions{
		Type:        "all",
		Sort:        "full_name",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var refs []domain.RepoRef
	for {
		var (
			repos []*github.Repository
			resp  *github.Response
		)
		err := g.retrier.Do(ctx, "list repositories of "+org, func(ctx context.Context) error {
			var err error
			repos, resp, err = g.restClient.Repositories.ListByOrg(ctx, org, opts)
			return err
		})
		if err != nil {
			return nil, classifyTarget("organization "+org, err)
		}
		for _, r := range repos {
			if r.GetArchived() && !includeArchived {
				g.logger.Debug("skipping archived repository", zap.String("repo", r.GetFullName()))
				continue
			}
			ref, err := domain.ParseRepoRef(r.GetFullName())
			if err != nil {
				return nil, apperr.MalformedResponse("repositories of "+org, err)
			}
			refs = append(refs, ref)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return refs, nil
}

// classifyTarget maps a failed organization lookup. Unlike repository failures
// these end the run, so every outcome carries recovery instructions.
func classifyTarget(target string, err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Cancelled(err)
	}
	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		return apperr.RateLimited(limitErr.ResetAt, timeNow(), err)
	}
	switch statusOf(err) {
	case http.StatusUnauthorized:
		return apperr.InvalidToken(err)
	case http.StatusNotFound, http.StatusForbidden:
		return apperr.TargetInaccessible(target, err)
	}
	return apperr.Unavailable("repositories of "+target, err)
}

// setWindow adds the server side filters an endpoint supports. Only the commits
// endpoint accepts until.
func setWindow(q url.Values, w domain.Window, withUntil bool) {
	if !w.Since.IsZero() {
		q.Set("since", w.Since.UTC().Format(time.RFC3339))
	}
	if withUntil && !w.Until.IsZero() {
		q.Set("until", w.Until.UTC().Format(time.RFC3339))
	}
}
