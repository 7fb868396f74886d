package facts

import (
	"fmt"
	"time"

	"github.com/naka-gawa/github-facts/internal/domain"
)

// ReviewTimes holds the review timing of one reviewed pull request.
type ReviewTimes struct {
	Repository    string
	Number        int
	CreatedAt     time.Time
	FirstReviewAt time.Time
	LastReviewAt  time.Time
}

// LeadTimeToFirstReview is the duration from creation to the first submitted review.
func (r ReviewTimes) LeadTimeToFirstReview() time.Duration { return r.FirstReviewAt.Sub(r.CreatedAt) }

// LeadTimeToLastReview is the duration from creation to the last submitted review.
func (r ReviewTimes) LeadTimeToLastReview() time.Duration { return r.LastReviewAt.Sub(r.CreatedAt) }

type pullKey struct {
	repo   string
	number int
}

// PullRequestReviewTimes pairs each pull request with its reviews. Pull requests
// without reviews are left out. The result follows the order of prs.
func PullRequestReviewTimes(prs []domain.PullRequest, reviews []domain.Review) []ReviewTimes {
	type span struct{ first, last time.Time }
	spans := make(map[pullKey]*span)
	for _, r := range reviews {
		k := pullKey{r.Repository, r.PullNumber}
		s, ok := spans[k]
		if !ok {
			spans[k] = &span{first: r.SubmittedAt, last: r.SubmittedAt}
			continue
		}
		if r.SubmittedAt.Before(s.first) {
			s.first = r.SubmittedAt
		}
		if r.SubmittedAt.After(s.last) {
			s.last = r.SubmittedAt
		}
	}

	out := []ReviewTimes{}
	for _, p := range prs {
		s, ok := spans[pullKey{p.Repository, p.Number}]
		if !ok {
			continue
		}
		out = append(out, ReviewTimes{
			Repository:    p.Repository,
			Number:        p.Number,
			CreatedAt:     p.CreatedAt,
			FirstReviewAt: s.first,
			LastReviewAt:  s.last,
		})
	}
	return out
}

// DurationFacts are distributions of elapsed seconds.
type DurationFacts struct {
	IssueResolution  DistributionMetrics
	PullRequestMerge DistributionMetrics
	FirstReview      DistributionMetrics
	LastReview       DistributionMetrics
}

// CalculateDurationFacts computes the duration distributions over the flat collections.
// Durations that come out negative (clock skew, reopened items) are skipped.
func CalculateDurationFacts(flat domain.FlatCollections) (DurationFacts, error) {
	var resolution, merge, first, last []float64
	for _, i := range flat.Issues {
		if i.ClosedAt != nil {
			resolution = appendSeconds(resolution, i.ClosedAt.Sub(i.CreatedAt))
		}
	}
	for _, p := range flat.PullRequests {
		if p.MergedAt != nil {
			merge = appendSeconds(merge, p.MergedAt.Sub(p.CreatedAt))
		}
	}
	for _, rt := range PullRequestReviewTimes(flat.PullRequests, flat.Reviews) {
		first = appendSeconds(first, rt.LeadTimeToFirstReview())
		last = appendSeconds(last, rt.LeadTimeToLastReview())
	}

	var (
		df  DurationFacts
		err error
	)
	if df.IssueResolution, err = CalculateDistributionMetrics(resolution); err != nil {
		return DurationFacts{}, fmt.Errorf("failed to calculate issue resolution times: %w", err)
	}
	if df.PullRequestMerge, err = CalculateDistributionMetrics(merge); err != nil {
		return DurationFacts{}, fmt.Errorf("failed to calculate pull request merge times: %w", err)
	}
	if df.FirstReview, err = CalculateDistributionMetrics(first); err != nil {
		return DurationFacts{}, fmt.Errorf("failed to calculate first review lead times: %w", err)
	}
	if df.LastReview, err = CalculateDistributionMetrics(last); err != nil {
		return DurationFacts{}, fmt.Errorf("failed to calculate last review lead times: %w", err)
	}
	return df, nil
}

func appendSeconds(values []float64, d time.Duration) []float64 {
	if d < 0 {
		return values
	}
	return append(values, d.Seconds())
}
