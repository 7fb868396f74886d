package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-facts/internal/domain"
)

// The decoders below keep the raw element next to the typed fields and reject
// elements missing an identifier or the timestamp the window is applied to.

func decodeRepository(raw json.RawMessage) (domain.Repository, error) {
	var r github.Repository
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.Repository{}, err
	}
	if r.GetFullName() == "" {
		return domain.Repository{}, errors.New("repository has no full_name")
	}
	return domain.Repository{
		FullName:      r.GetFullName(),
		DefaultBranch: r.GetDefaultBranch(),
		Private:       r.GetPrivate(),
		Archived:      r.GetArchived(),
		Fork:          r.GetFork(),
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		OpenIssues:    r.GetOpenIssuesCount(),
		CreatedAt:     r.GetCreatedAt().Time,
		PushedAt:      r.GetPushedAt().Time,
		Raw:           raw,
	}, nil
}

func commitDecoder(repo string) func(json.RawMessage) (domain.Commit, bool, error) {
	return func(raw json.RawMessage) (domain.Commit, bool, error) {
		var c github.RepositoryCommit
		if err := json.Unmarshal(raw, &c); err != nil {
			return domain.Commit{}, false, err
		}
		if c.GetSHA() == "" {
			return domain.Commit{}, false, errors.New("commit has no sha")
		}
		committed := c.GetCommit().GetCommitter().GetDate().Time
		if committed.IsZero() {
			return domain.Commit{}, false, fmt.Errorf("commit %s has no committer date", c.GetSHA())
		}
		author := c.GetCommit().GetAuthor()
		return domain.Commit{
			Repository:  repo,
			SHA:         c.GetSHA(),
			AuthorLogin: c.GetAuthor().GetLogin(),
			AuthorName:  author.GetName(),
			AuthorEmail: author.GetEmail(),
			AuthoredAt:  author.GetDate().Time,
			CommittedAt: committed,
			Raw:         raw,
		}, true, nil
	}
}

// issueDecoder drops pull requests, which the issues endpoint also returns.
func issueDecoder(repo string) func(json.RawMessage) (domain.Issue, bool, error) {
	return func(raw json.RawMessage) (domain.Issue, bool, error) {
		var i github.Issue
		if err := json.Unmarshal(raw, &i); err != nil {
			return domain.Issue{}, false, err
		}
		if i.IsPullRequest() {
			return domain.Issue{}, false, nil
		}
		if i.GetNumber() == 0 {
			return domain.Issue{}, false, errors.New("issue has no number")
		}
		if err := requireTimes(fmt.Sprintf("issue #%d", i.GetNumber()), i.CreatedAt, i.UpdatedAt); err != nil {
			return domain.Issue{}, false, err
		}
		labels := make([]string, 0, len(i.Labels))
		for _, l := range i.Labels {
			labels = append(labels, l.GetName())
		}
		return domain.Issue{
			Repository: repo,
			Number:     i.GetNumber(),
			State:      i.GetState(),
			Author:     i.GetUser().GetLogin(),
			Labels:     labels,
			Comments:   i.GetComments(),
			CreatedAt:  i.GetCreatedAt().Time,
			UpdatedAt:  i.GetUpdatedAt().Time,
			ClosedAt:   timePtr(i.ClosedAt),
			Raw:        raw,
		}, true, nil
	}
}

func pullRequestDecoder(repo string) func(json.RawMessage) (domain.PullRequest, bool, error) {
	return func(raw json.RawMessage) (domain.PullRequest, bool, error) {
		var p github.PullRequest
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.PullRequest{}, false, err
		}
		if p.GetNumber() == 0 {
			return domain.PullRequest{}, false, errors.New("pull request has no number")
		}
		if err := requireTimes(fmt.Sprintf("pull request #%d", p.GetNumber()), p.CreatedAt, p.UpdatedAt); err != nil {
			return domain.PullRequest{}, false, err
		}
		labels := make([]string, 0, len(p.Labels))
		for _, l := range p.Labels {
			labels = append(labels, l.GetName())
		}
		return domain.PullRequest{
			Repository: repo,
			Number:     p.GetNumber(),
			State:      p.GetState(),
			Author:     p.GetUser().GetLogin(),
			Labels:     labels,
			Draft:      p.GetDraft(),
			CreatedAt:  p.GetCreatedAt().Time,
			UpdatedAt:  p.GetUpdatedAt().Time,
			ClosedAt:   timePtr(p.ClosedAt),
			MergedAt:   timePtr(p.MergedAt),
			Raw:        raw,
		}, true, nil
	}
}

func issueCommentDecoder(repo string) func(json.RawMessage) (domain.IssueComment, bool, error) {
	return func(raw json.RawMessage) (domain.IssueComment, bool, error) {
		var c github.IssueComment
		if err := json.Unmarshal(raw, &c); err != nil {
			return domain.IssueComment{}, false, err
		}
		if c.GetID() == 0 {
			return domain.IssueComment{}, false, errors.New("issue comment has no id")
		}
		if err := requireTimes(fmt.Sprintf("issue comment %d", c.GetID()), c.CreatedAt, c.UpdatedAt); err != nil {
			return domain.IssueComment{}, false, err
		}
		number, err := trailingNumber(c.GetIssueURL())
		if err != nil {
			return domain.IssueComment{}, false, fmt.Errorf("issue comment %d: %w", c.GetID(), err)
		}
		return domain.IssueComment{
			Repository:  repo,
			ID:          c.GetID(),
			IssueNumber: number,
			Author:      c.GetUser().GetLogin(),
			CreatedAt:   c.GetCreatedAt().Time,
			UpdatedAt:   c.GetUpdatedAt().Time,
			Raw:         raw,
		}, true, nil
	}
}

// reviewDecoder drops pending reviews, which have no submission time.
func reviewDecoder(repo string, pull int) func(json.RawMessage) (domain.Review, bool, error) {
	return func(raw json.RawMessage) (domain.Review, bool, error) {
		var r github.PullRequestReview
		if err := json.Unmarshal(raw, &r); err != nil {
			return domain.Review{}, false, err
		}
		if r.GetID() == 0 {
			return domain.Review{}, false, errors.New("review has no id")
		}
		if r.SubmittedAt == nil || r.GetState() == "PENDING" {
			return domain.Review{}, false, nil
		}
		return domain.Review{
			Repository:  repo,
			ID:          r.GetID(),
			PullNumber:  pull,
			Author:      r.GetUser().GetLogin(),
			State:       r.GetState(),
			SubmittedAt: r.GetSubmittedAt().Time,
			Raw:         raw,
		}, true, nil
	}
}

func reviewCommentDecoder(repo string) func(json.RawMessage) (domain.ReviewComment, bool, error) {
	return func(raw json.RawMessage) (domain.ReviewComment, bool, error) {
		var c github.PullRequestComment
		if err := json.Unmarshal(raw, &c); err != nil {
			return domain.ReviewComment{}, false, err
		}
		if c.GetID() == 0 {
			return domain.ReviewComment{}, false, errors.New("review comment has no id")
		}
		if err := requireTimes(fmt.Sprintf("review comment %d", c.GetID()), c.CreatedAt, c.UpdatedAt); err != nil {
			return domain.ReviewComment{}, false, err
		}
		number, err := trailingNumber(c.GetPullRequestURL())
		if err != nil {
			return domain.ReviewComment{}, false, fmt.Errorf("review comment %d: %w", c.GetID(), err)
		}
		return domain.ReviewComment{
			Repository: repo,
			ID:         c.GetID(),
			PullNumber: number,
			Author:     c.GetUser().GetLogin(),
			Path:       c.GetPath(),
			CreatedAt:  c.GetCreatedAt().Time,
			UpdatedAt:  c.GetUpdatedAt().Time,
			Raw:        raw,
		}, true, nil
	}
}

func releaseDecoder(repo string) func(json.RawMessage) (domain.Release, bool, error) {
	return func(raw json.RawMessage) (domain.Release, bool, error) {
		var r github.RepositoryRelease
		if err := json.Unmarshal(raw, &r); err != nil {
			return domain.Release{}, false, err
		}
		if r.GetID() == 0 {
			return domain.Release{}, false, errors.New("release has no id")
		}
		if r.CreatedAt == nil {
			return domain.Release{}, false, fmt.Errorf("release %d has no created_at", r.GetID())
		}
		return domain.Release{
			Repository:  repo,
			ID:          r.GetID(),
			TagName:     r.GetTagName(),
			Author:      r.GetAuthor().GetLogin(),
			Draft:       r.GetDraft(),
			Prerelease:  r.GetPrerelease(),
			CreatedAt:   r.GetCreatedAt().Time,
			PublishedAt: timePtr(r.PublishedAt),
			Raw:         raw,
		}, true, nil
	}
}

func requireTimes(what string, created, updated *github.Timestamp) error {
	if created == nil || created.IsZero() {
		return fmt.Errorf("%s has no created_at", what)
	}
	if updated == nil || updated.IsZero() {
		return fmt.Errorf("%s has no updated_at", what)
	}
	return nil
}

func timePtr(ts *github.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}

// trailingNumber reads the issue or pull number at the end of an API URL.
func trailingNumber(apiURL string) (int, error) {
	idx := strings.LastIndex(apiURL, "/")
	if idx < 0 {
		return 0, fmt.Errorf("cannot read a number from url %q", apiURL)
	}
	n, err := strconv.Atoi(apiURL[idx+1:])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("cannot read a number from url %q", apiURL)
	}
	return n, nil
}
