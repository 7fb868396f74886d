package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/naka-gawa/github-facts/internal/ratelimit"
	"go.uber.org/zap"
)

// listSpec describes one paginated REST list endpoint.
type listSpec[T domain.Item] struct {
	kind  domain.ItemKind
	path  string
	query url.Values
	// newestFirst lists are ordered by descending timestamp, so the first item
	// older than since ends the walk.
	newestFirst bool
	// emptyOnConflict treats 409 as an empty list, which is how GitHub answers
	// commit listings of an empty repository.
	emptyOnConflict bool
	// decode maps one raw element; keep=false drops it silently.
	decode func(raw json.RawMessage) (item T, keep bool, err error)
}

// paginate walks spec page by page in API order and returns the items inside
// the window. It stops on the last page, a short page, the item cap or, for
// newest-first lists, the since boundary.
func paginate[T domain.Item](ctx context.Context, g *GitHubGateway, repo domain.RepoRef, spec listSpec[T], opts ListOptions) ([]T, bool, error) {
	items := []T{}
	page := 1
	for {
		raws, resp, err := g.getPage(ctx, spec.path, spec.query, page)
		if err != nil {
			if spec.emptyOnConflict && statusOf(err) == http.StatusConflict {
				g.logger.Debug("repository is empty", zap.String("repo", repo.String()))
				return []T{}, false, nil
			}
			return nil, false, classify(repo, string(spec.kind), err)
		}

		crossed := false
		lastPage := len(raws) < ratelimit.PageSize || resp.NextPage == 0
		for i, raw := range raws {
			item, keep, err := spec.decode(raw)
			if err != nil {
				return nil, false, apperr.MalformedResponse(fmt.Sprintf("%s of %s", spec.kind, repo), err)
			}
			if !keep {
				continue
			}
			ts := item.Timestamp()
			if !opts.Window.Since.IsZero() && ts.Before(opts.Window.Since) {
				if spec.newestFirst {
					crossed = true
					break
				}
				continue
			}
			if !opts.Window.Until.IsZero() && ts.After(opts.Window.Until) {
				continue
			}
			items = append(items, item)
			if opts.MaxItems > 0 && len(items) >= opts.MaxItems {
				// Reaching the cap on the very last element is not a truncation.
				truncated := i < len(raws)-1 || !lastPage
				g.logger.Debug("item cap reached",
					zap.String("repo", repo.String()), zap.String("kind", string(spec.kind)),
					zap.Int("cap", opts.MaxItems), zap.Bool("truncated", truncated))
				return items, truncated, nil
			}
		}

		if crossed || lastPage {
			return items, false, nil
		}
		page = resp.NextPage
		g.logger.Debug("fetching next page",
			zap.String("repo", repo.String()), zap.String("kind", string(spec.kind)), zap.Int("page", page))
	}
}

// getPage fetches one page of a list endpoint, keeping every element as raw JSON.
func (g *GitHubGateway) getPage(ctx context.Context, path string, query url.Values, page int) ([]json.RawMessage, *github.Response, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("per_page", strconv.Itoa(ratelimit.PageSize))
	q.Set("page", strconv.Itoa(page))

	var raws []json.RawMessage
	resp, err := g.getJSON(ctx, path+"?"+q.Encode(), &raws)
	if err != nil {
		return nil, resp, err
	}
	return raws, resp, nil
}

// getJSON performs a retried GET and decodes the body into v.
func (g *GitHubGateway) getJSON(ctx context.Context, urlStr string, v any) (*github.Response, error) {
	var resp *github.Response
	err := g.retrier.Do(ctx, urlStr, func(ctx context.Context) error {
		req, err := g.restClient.NewRequest(http.MethodGet, urlStr, nil)
		if err != nil {
			return err
		}
		resp, err = g.restClient.Do(ctx, req, v)
		return err
	})
	return resp, err
}

// statusOf returns the HTTP status of a go-github error, or 0.
func statusOf(err error) int {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	return 0
}

// classify turns a failed repository call into the error taxonomy.
func classify(repo domain.RepoRef, what string, err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		return apperr.RateLimited(limitErr.ResetAt, timeNow(), err)
	}
	switch status := statusOf(err); status {
	case http.StatusUnauthorized:
		return apperr.InvalidToken(err)
	case http.StatusNotFound, http.StatusForbidden, http.StatusUnavailableForLegalReasons:
		return apperr.RepositoryInaccessible(repo.String(), status, err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return apperr.MalformedResponse(fmt.Sprintf("%s of %s", what, repo), err)
	}
	// Context errors stay bare so the collector can tell a deadline from a failure.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Unavailable(fmt.Sprintf("%s of %s", what, repo), err)
}
