package facts

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/naka-gawa/github-facts/internal/domain"
)

// ReportInput is everything a report is built from.
type ReportInput struct {
	Result    *domain.CollectionResult
	Flat      domain.FlatCollections
	Indexes   *domain.OptimalIndexes
	RepoStats []*domain.RepoStats
	Project   *domain.Project
}

// BuildReport flattens the facts of one run into string keys and values.
// Identical inputs always produce identical maps.
func BuildReport(in ReportInput) (map[string]string, error) {
	r := report{}
	result := in.Result
	if result == nil {
		result = &domain.CollectionResult{}
	}

	r.setString("runId", result.RunID)
	r.setBool("incomplete", result.Incomplete)
	if !result.Window.Since.IsZero() {
		r.setString("window.since", result.Window.Since.UTC().Format(time.RFC3339))
	}
	if !result.Window.Until.IsZero() {
		r.setString("window.until", result.Window.Until.UTC().Format(time.RFC3339))
	}
	r.setFloat("windowDays", result.Window.Days())
	r.setInt("repositoriesCount", len(result.DataSets)+len(result.Failures))
	r.setInt("collectedRepositoriesCount", len(result.DataSets))
	r.setInt("failedRepositoriesCount", len(result.Failures))

	perRepo := make([]domain.ActivityMetrics, 0, len(result.DataSets))
	for _, ds := range result.DataSets {
		perRepo = append(perRepo, CollectActivityFacts(ds, result.Window))
	}
	total := MergeActivity(perRepo...)
	total.Window = result.Window
	r.activity("", total)
	r.setFloat("commitsPerDay", total.CommitsPerDay())
	r.setFloat("issuesPerDay", total.IssuesPerDay())
	r.setFloat("pullRequestsPerDay", total.PullRequestsPerDay())

	if in.Indexes != nil {
		var perAuthor []float64
		for _, refs := range in.Indexes.ByAuthor {
			if n := len(refs.Commits); n > 0 {
				perAuthor = append(perAuthor, float64(n))
			}
		}
		dist, err := CalculateDistributionMetrics(perAuthor)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate commits per contributor: %w", err)
		}
		r.distribution("commitsPerContributor", dist)

		for label, refs := range in.Indexes.ByLabel {
			if n := len(refs.Issues); n > 0 {
				r.setInt("label."+label+".issuesCount", n)
			}
			if n := len(refs.PullRequests); n > 0 {
				r.setInt("label."+label+".pullRequestsCount", n)
			}
		}
	}

	durations, err := CalculateDurationFacts(in.Flat)
	if err != nil {
		return nil, err
	}
	r.distribution("issueResolutionSeconds", durations.IssueResolution)
	r.distribution("pullRequestMergeSeconds", durations.PullRequestMerge)
	r.distribution("firstReviewSeconds", durations.FirstReview)
	r.distribution("lastReviewSeconds", durations.LastReview)

	for i, ds := range result.DataSets {
		prefix := "repo." + ds.Repository.FullName + "."
		r.activity(prefix, perRepo[i])
		r.setInt(prefix+"stars", ds.Repository.Stars)
		r.setInt(prefix+"forks", ds.Repository.Forks)
		for kind, truncated := range ds.Truncated {
			if truncated {
				r.setBool(prefix+"truncated."+string(kind), true)
			}
		}
	}
	for _, rs := range in.RepoStats {
		dist, err := CalculateDistributionMetrics(rs.LeadTimeToLastReviewSeconds)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate lead times of %s: %w", rs.Name, err)
		}
		r.distribution("repo."+rs.Name+".leadTimeToLastReviewSeconds", dist)
	}

	for i, f := range result.Failures {
		prefix := "failure." + strconv.Itoa(i) + "."
		r.setString(prefix+"repository", f.Repository)
		r.setString(prefix+"kind", string(f.Kind))
		r.setString(prefix+"reason", f.Reason)
		for j, step := range f.Recovery {
			r.setString(prefix+"recovery."+strconv.Itoa(j), step)
		}
	}

	if in.Project != nil {
		pf := CollectProjectFacts(in.Project)
		r.setInt("project.itemsCount", pf.Items)
		for k, n := range pf.ByType {
			r.setInt("project.type."+k+".count", n)
		}
		for k, n := range pf.ByRepository {
			r.setInt("project.repo."+k+".itemsCount", n)
		}
		for k, n := range pf.ByState {
			r.setInt("project.state."+k+".count", n)
		}
		for field, options := range pf.ByFieldOption {
			for option, n := range options {
				r.setInt("project.field."+field+"."+option+".count", n)
			}
		}
		for login, n := range pf.ByUser {
			r.setInt("project.user."+login+".itemsCount", n)
		}
		for field, n := range pf.FieldsSet {
			r.setInt("project.field."+field+".setCount", n)
		}
	}
	return r, nil
}

type report map[string]string

func (r report) setString(k, v string) { r[k] = v }

func (r report) setInt(k string, v int) { r[k] = strconv.Itoa(v) }

func (r report) setBool(k string, v bool) { r[k] = strconv.FormatBool(v) }

// setFloat rounds to four decimals so reports stay stable across runs.
func (r report) setFloat(k string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	r[k] = strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}

func (r report) activity(prefix string, m domain.ActivityMetrics) {
	key := func(name string) string { return prefix + name }
	issuesKey := "issuesCount"
	if prefix == "" {
		issuesKey = "totalIssuesCount"
	}
	r.setInt(key("commitsCount"), m.Commits)
	r.setInt(key(issuesKey), m.Issues)
	r.setInt(key("openIssuesCount"), m.OpenIssues)
	r.setInt(key("closedIssuesCount"), m.ClosedIssues)
	r.setInt(key("issuesOpenedInWindowCount"), m.IssuesOpenedInRange)
	r.setInt(key("issuesClosedInWindowCount"), m.IssuesClosedInRange)
	r.setInt(key("pullRequestsCount"), m.PullRequests)
	r.setInt(key("openPullRequestsCount"), m.OpenPullRequests)
	r.setInt(key("closedPullRequestsCount"), m.ClosedPullRequests)
	r.setInt(key("mergedPullRequestsCount"), m.MergedPullRequests)
	r.setInt(key("issueCommentsCount"), m.IssueComments)
	r.setInt(key("reviewsCount"), m.Reviews)
	r.setInt(key("reviewCommentsCount"), m.ReviewComments)
	r.setInt(key("releasesCount"), m.Releases)
	r.setInt(key("contributorsCount"), m.ContributorCount())
}

// distribution writes the count always and the remaining metrics only when
// there is at least one value.
func (r report) distribution(prefix string, d DistributionMetrics) {
	r.setInt(prefix+".count", d.Count)
	if d.Count == 0 {
		return
	}
	r.setFloat(prefix+".sum", d.Sum)
	r.setFloat(prefix+".mean", d.Mean)
	r.setFloat(prefix+".median", d.Median)
	r.setFloat(prefix+".p25", d.P25)
	r.setFloat(prefix+".p75", d.P75)
	r.setFloat(prefix+".p90", d.P90)
	r.setFloat(prefix+".stddev", d.StdDev)
	r.setFloat(prefix+".gini", d.Gini)
	r.setFloat(prefix+".top1Share", d.Top1Share)
	r.setFloat(prefix+".top3Share", d.Top3Share)
}
