package facts

import (
	"testing"
	"time"

	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/stretchr/testify/assert"
)

var (
	baseTime = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	window   = domain.Window{Since: baseTime, Until: baseTime.AddDate(0, 0, 10)}
)

func at(hours int) time.Time { return baseTime.Add(time.Duration(hours) * time.Hour) }

func atPtr(hours int) *time.Time {
	t := at(hours)
	return &t
}

func sampleDataSet() domain.RepositoryDataSet {
	return domain.RepositoryDataSet{
		Repository: domain.Repository{FullName: "acme/alpha", Stars: 12, Forks: 3},
		Commits: []domain.Commit{
			{Repository: "acme/alpha", SHA: "a", AuthorLogin: "alice", CommittedAt: at(1)},
			{Repository: "acme/alpha", SHA: "b", AuthorLogin: "alice", CommittedAt: at(2)},
			{Repository: "acme/alpha", SHA: "c", AuthorEmail: "ci@example.com", CommittedAt: at(3)},
		},
		Issues: []domain.Issue{
			{Repository: "acme/alpha", Number: 1, State: "open", Labels: []string{"bug"}, CreatedAt: at(1), UpdatedAt: at(2)},
			{Repository: "acme/alpha", Number: 2, State: "closed", CreatedAt: at(-48), UpdatedAt: at(5), ClosedAt: atPtr(5)},
			{Repository: "acme/alpha", Number: 3, State: "closed", CreatedAt: at(2), UpdatedAt: at(3), ClosedAt: atPtr(4)},
		},
		PullRequests: []domain.PullRequest{
			{Repository: "acme/alpha", Number: 4, State: "open", CreatedAt: at(0), UpdatedAt: at(1)},
			{Repository: "acme/alpha", Number: 5, State: "closed", CreatedAt: at(0), UpdatedAt: at(6), ClosedAt: atPtr(6), MergedAt: atPtr(6)},
			{Repository: "acme/alpha", Number: 6, State: "closed", CreatedAt: at(0), UpdatedAt: at(6), ClosedAt: atPtr(6)},
		},
		Reviews: []domain.Review{
			{Repository: "acme/alpha", ID: 10, PullNumber: 5, SubmittedAt: at(2)},
			{Repository: "acme/alpha", ID: 11, PullNumber: 5, SubmittedAt: at(4)},
			{Repository: "acme/alpha", ID: 12, PullNumber: 4, SubmittedAt: at(1)},
		},
		Releases: []domain.Release{{Repository: "acme/alpha", ID: 20, CreatedAt: at(7)}},
	}
}

func TestCollectActivityFacts(t *testing.T) {
	m := CollectActivityFacts(sampleDataSet(), window)

	assert.Equal(t, 3, m.Commits)
	assert.Equal(t, 3, m.Issues)
	assert.Equal(t, 1, m.OpenIssues)
	assert.Equal(t, 2, m.ClosedIssues)
	assert.Equal(t, 2, m.IssuesOpenedInRange)
	assert.Equal(t, 2, m.IssuesClosedInRange)
	assert.Equal(t, 3, m.PullRequests)
	assert.Equal(t, 1, m.OpenPullRequests)
	assert.Equal(t, 2, m.ClosedPullRequests)
	assert.Equal(t, 1, m.MergedPullRequests)
	assert.Equal(t, 3, m.Reviews)
	assert.Equal(t, 1, m.Releases)
	assert.Equal(t, 2, m.ContributorCount())
	assert.InDelta(t, 0.3, m.CommitsPerDay(), 1e-9)
}

func TestMergeActivity(t *testing.T) {
	a := CollectActivityFacts(sampleDataSet(), window)
	other := sampleDataSet()
	other.Commits = []domain.Commit{{Repository: "acme/beta", SHA: "z", AuthorLogin: "bob", CommittedAt: at(1)}}
	b := CollectActivityFacts(other, window)

	merged := MergeActivity(a, b)

	assert.Equal(t, 4, merged.Commits)
	assert.Equal(t, 6, merged.Issues)
	assert.Equal(t, 2, merged.OpenIssues)
	assert.Equal(t, 3, merged.ContributorCount())
	assert.Equal(t, window, merged.Window)

	empty := MergeActivity()
	assert.Equal(t, 0, empty.Commits)
	assert.Equal(t, 0, empty.ContributorCount())
}
