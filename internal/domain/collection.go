package domain

import "time"

// RepositoryDataSet is one repository's complete collected data for a run.
type RepositoryDataSet struct {
	Repository     Repository      `json:"repository"`
	Commits        []Commit        `json:"commits"`
	Issues         []Issue         `json:"issues"`
	PullRequests   []PullRequest   `json:"pull_requests"`
	IssueComments  []IssueComment  `json:"issue_comments"`
	Reviews        []Review        `json:"reviews"`
	ReviewComments []ReviewComment `json:"review_comments"`
	Releases       []Release       `json:"releases"`

	// Truncated marks kinds where the item cap stopped pagination early.
	Truncated   map[ItemKind]bool `json:"truncated,omitempty"`
	CollectedAt time.Time         `json:"collected_at"`
}

// FailureKind classifies a repository-level failure.
type FailureKind string

const (
	FailureAccess    FailureKind = "access"
	FailureDataShape FailureKind = "data_shape"
	FailureTimeout   FailureKind = "timeout"
	FailureOther     FailureKind = "other"
)

// RepositoryFailure records why a repository is missing from the result.
type RepositoryFailure struct {
	Repository string      `json:"repository"`
	Kind       FailureKind `json:"kind"`
	Reason     string      `json:"reason"`
	Recovery   []string    `json:"recovery"`
}

// CollectionResult is the outcome of one multi-repository collection run.
type CollectionResult struct {
	RunID      string              `json:"run_id"`
	Window     Window              `json:"window"`
	DataSets   []RepositoryDataSet `json:"data_sets"`
	Failures   []RepositoryFailure `json:"failures"`
	Incomplete bool                `json:"incomplete"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

// FlatCollections holds every collected item of a run in flat arrays, in repository order.
type FlatCollections struct {
	Repositories   []Repository
	Commits        []Commit
	Issues         []Issue
	PullRequests   []PullRequest
	IssueComments  []IssueComment
	Reviews        []Review
	ReviewComments []ReviewComment
	Releases       []Release
}

// ItemRefs lists positions into the flat arrays, per kind.
type ItemRefs struct {
	Commits        []int `json:"commits,omitempty"`
	Issues         []int `json:"issues,omitempty"`
	PullRequests   []int `json:"pull_requests,omitempty"`
	IssueComments  []int `json:"issue_comments,omitempty"`
	Reviews        []int `json:"reviews,omitempty"`
	ReviewComments []int `json:"review_comments,omitempty"`
	Releases       []int `json:"releases,omitempty"`
}

// OptimalIndexes are lookup tables over FlatCollections.
type OptimalIndexes struct {
	ByRepository map[string]*ItemRefs `json:"by_repository"`
	ByAuthor     map[string]*ItemRefs `json:"by_author"`
	ByLabel      map[string]*ItemRefs `json:"by_label"`
}

// FactReport is what one aggregation run hands to the consumer.
type FactReport struct {
	Facts   map[string]string `json:"facts"`
	Result  *CollectionResult `json:"-"`
	Project *Project          `json:"-"`
}
