package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RepoRef identifies a repository by owner and name.
type RepoRef struct {
	Owner string
	Name  string
}

// ParseRepoRef parses an "owner/name" string.
func ParseRepoRef(s string) (RepoRef, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoRef{}, fmt.Errorf("invalid repository %q: expected owner/name", s)
	}
	return RepoRef{Owner: owner, Name: name}, nil
}

func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// Key identifies the repository regardless of letter case, as GitHub does.
func (r RepoRef) Key() string {
	return strings.ToLower(r.String())
}

// ItemKind names one of the collectable item lists of a repository.
type ItemKind string

const (
	KindCommits        ItemKind = "commits"
	KindIssues         ItemKind = "issues"
	KindPullRequests   ItemKind = "pull_requests"
	KindIssueComments  ItemKind = "issue_comments"
	KindReviews        ItemKind = "reviews"
	KindReviewComments ItemKind = "review_comments"
	KindReleases       ItemKind = "releases"
)

// AllKinds lists every item kind in collection order.
// Reviews come after pull requests because they are fetched per pull request.
var AllKinds = []ItemKind{
	KindCommits,
	KindIssues,
	KindPullRequests,
	KindIssueComments,
	KindReviews,
	KindReviewComments,
	KindReleases,
}

// ParseItemKind validates a kind name.
func ParseItemKind(s string) (ItemKind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown item kind %q", s)
}

// Repository is the metadata snapshot of a repository.
type Repository struct {
	FullName      string          `json:"full_name"`
	DefaultBranch string          `json:"default_branch"`
	Private       bool            `json:"private"`
	Archived      bool            `json:"archived"`
	Fork          bool            `json:"fork"`
	Stars         int             `json:"stars"`
	Forks         int             `json:"forks"`
	OpenIssues    int             `json:"open_issues"`
	CreatedAt     time.Time       `json:"created_at"`
	PushedAt      time.Time       `json:"pushed_at"`
	Raw           json.RawMessage `json:"raw"`
}

// Commit is a single commit on the default branch.
type Commit struct {
	Repository  string          `json:"repository"`
	SHA         string          `json:"sha"`
	AuthorLogin string          `json:"author_login"`
	AuthorName  string          `json:"author_name"`
	AuthorEmail string          `json:"author_email"`
	AuthoredAt  time.Time       `json:"authored_at"`
	CommittedAt time.Time       `json:"committed_at"`
	Raw         json.RawMessage `json:"raw"`
}

// Timestamp is the committer date, the field GitHub's since filter applies to.
func (c Commit) Timestamp() time.Time { return c.CommittedAt }

// Contributor returns the login, falling back to the author email for unlinked commits.
func (c Commit) Contributor() string {
	if c.AuthorLogin != "" {
		return c.AuthorLogin
	}
	return strings.ToLower(c.AuthorEmail)
}

// Issue is an issue (pull requests excluded).
type Issue struct {
	Repository string          `json:"repository"`
	Number     int             `json:"number"`
	State      string          `json:"state"`
	Author     string          `json:"author"`
	Labels     []string        `json:"labels"`
	Comments   int             `json:"comments"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	ClosedAt   *time.Time      `json:"closed_at,omitempty"`
	Raw        json.RawMessage `json:"raw"`
}

func (i Issue) Timestamp() time.Time { return i.UpdatedAt }

// PullRequest is a pull request.
type PullRequest struct {
	Repository string          `json:"repository"`
	Number     int             `json:"number"`
	State      string          `json:"state"`
	Author     string          `json:"author"`
	Labels     []string        `json:"labels"`
	Draft      bool            `json:"draft"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	ClosedAt   *time.Time      `json:"closed_at,omitempty"`
	MergedAt   *time.Time      `json:"merged_at,omitempty"`
	Raw        json.RawMessage `json:"raw"`
}

func (p PullRequest) Timestamp() time.Time { return p.UpdatedAt }

// IssueComment is a comment on an issue or pull request conversation.
type IssueComment struct {
	Repository  string          `json:"repository"`
	ID          int64           `json:"id"`
	IssueNumber int             `json:"issue_number"`
	Author      string          `json:"author"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Raw         json.RawMessage `json:"raw"`
}

func (c IssueComment) Timestamp() time.Time { return c.UpdatedAt }

// Review is a pull request review.
type Review struct {
	Repository  string          `json:"repository"`
	ID          int64           `json:"id"`
	PullNumber  int             `json:"pull_number"`
	Author      string          `json:"author"`
	State       string          `json:"state"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Raw         json.RawMessage `json:"raw"`
}

func (r Review) Timestamp() time.Time { return r.SubmittedAt }

// ReviewComment is an inline pull request review comment.
type ReviewComment struct {
	Repository string          `json:"repository"`
	ID         int64           `json:"id"`
	PullNumber int             `json:"pull_number"`
	Author     string          `json:"author"`
	Path       string          `json:"path"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Raw        json.RawMessage `json:"raw"`
}

func (c ReviewComment) Timestamp() time.Time { return c.UpdatedAt }

// Release is a published or draft release.
type Release struct {
	Repository  string          `json:"repository"`
	ID          int64           `json:"id"`
	TagName     string          `json:"tag_name"`
	Author      string          `json:"author"`
	Draft       bool            `json:"draft"`
	Prerelease  bool            `json:"prerelease"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	Raw         json.RawMessage `json:"raw"`
}

func (r Release) Timestamp() time.Time { return r.CreatedAt }

// Item is implemented by every collected list element.
type Item interface {
	Commit | Issue | PullRequest | IssueComment | Review | ReviewComment | Release
	Timestamp() time.Time
}
