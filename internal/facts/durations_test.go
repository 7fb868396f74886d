package facts

import (
	"testing"
	"time"

	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPullRequestReviewTimes(t *testing.T) {
	ds := sampleDataSet()

	got := PullRequestReviewTimes(ds.PullRequests, ds.Reviews)

	require.Len(t, got, 2)
	assert.Equal(t, 4, got[0].Number)
	assert.Equal(t, time.Hour, got[0].LeadTimeToFirstReview())
	assert.Equal(t, time.Hour, got[0].LeadTimeToLastReview())
	assert.Equal(t, 5, got[1].Number)
	assert.Equal(t, 2*time.Hour, got[1].LeadTimeToFirstReview())
	assert.Equal(t, 4*time.Hour, got[1].LeadTimeToLastReview())
}

func TestPullRequestReviewTimesKeepsRepositoriesApart(t *testing.T) {
	prs := []domain.PullRequest{
		{Repository: "acme/alpha", Number: 1, CreatedAt: at(0)},
		{Repository: "acme/beta", Number: 1, CreatedAt: at(0)},
	}
	reviews := []domain.Review{{Repository: "acme/beta", ID: 1, PullNumber: 1, SubmittedAt: at(3)}}

	got := PullRequestReviewTimes(prs, reviews)

	require.Len(t, got, 1)
	assert.Equal(t, "acme/beta", got[0].Repository)
}

func TestCalculateDurationFacts(t *testing.T) {
	ds := sampleDataSet()
	flat := domain.FlatCollections{Issues: ds.Issues, PullRequests: ds.PullRequests, Reviews: ds.Reviews}

	df, err := CalculateDurationFacts(flat)

	require.NoError(t, err)
	assert.Equal(t, 2, df.IssueResolution.Count)
	assert.InDelta(t, 190800+7200, df.IssueResolution.Sum, 1e-9)
	assert.Equal(t, 1, df.PullRequestMerge.Count)
	assert.InDelta(t, 21600, df.PullRequestMerge.Median, 1e-9)
	assert.Equal(t, 2, df.FirstReview.Count)
	assert.InDelta(t, 5400, df.FirstReview.Mean, 1e-9)
	assert.InDelta(t, 14400, df.LastReview.P90, 1e-9)
}

func TestCalculateDurationFactsSkipsNegativeDurations(t *testing.T) {
	flat := domain.FlatCollections{
		Issues: []domain.Issue{{Repository: "acme/alpha", Number: 1, CreatedAt: at(5), UpdatedAt: at(5), ClosedAt: atPtr(1)}},
	}

	df, err := CalculateDurationFacts(flat)

	require.NoError(t, err)
	assert.Equal(t, 0, df.IssueResolution.Count)
}
