package facts

import (
	"github.com/naka-gawa/github-facts/internal/domain"
)

// CollectActivityFacts counts the activity of one data set over window.
// The data set is expected to hold only items inside the window already.
func CollectActivityFacts(ds domain.RepositoryDataSet, window domain.Window) domain.ActivityMetrics {
	m := domain.ActivityMetrics{
		Window:         window,
		Commits:        len(ds.Commits),
		Issues:         len(ds.Issues),
		PullRequests:   len(ds.PullRequests),
		IssueComments:  len(ds.IssueComments),
		Reviews:        len(ds.Reviews),
		ReviewComments: len(ds.ReviewComments),
		Releases:       len(ds.Releases),
		Contributors:   map[string]struct{}{},
	}

	for _, c := range ds.Commits {
		if who := c.Contributor(); who != "" {
			m.Contributors[who] = struct{}{}
		}
	}
	for _, i := range ds.Issues {
		switch i.State {
		case "open":
			m.OpenIssues++
		case "closed":
			m.ClosedIssues++
		}
		if window.Contains(i.CreatedAt) {
			m.IssuesOpenedInRange++
		}
		if i.ClosedAt != nil && window.Contains(*i.ClosedAt) {
			m.IssuesClosedInRange++
		}
	}
	for _, p := range ds.PullRequests {
		switch p.State {
		case "open":
			m.OpenPullRequests++
		case "closed":
			m.ClosedPullRequests++
		}
		if p.MergedAt != nil {
			m.MergedPullRequests++
		}
	}
	return m
}

// MergeActivity sums the counts of ms and unions their contributors.
// The window of the first element is kept.
func MergeActivity(ms ...domain.ActivityMetrics) domain.ActivityMetrics {
	merged := domain.ActivityMetrics{Contributors: map[string]struct{}{}}
	for i, m := range ms {
		if i == 0 {
			merged.Window = m.Window
		}
		merged.Commits += m.Commits
		merged.Issues += m.Issues
		merged.OpenIssues += m.OpenIssues
		merged.ClosedIssues += m.ClosedIssues
		merged.IssuesOpenedInRange += m.IssuesOpenedInRange
		merged.IssuesClosedInRange += m.IssuesClosedInRange
		merged.PullRequests += m.PullRequests
		merged.OpenPullRequests += m.OpenPullRequests
		merged.ClosedPullRequests += m.ClosedPullRequests
		merged.MergedPullRequests += m.MergedPullRequests
		merged.IssueComments += m.IssueComments
		merged.Reviews += m.Reviews
		merged.ReviewComments += m.ReviewComments
		merged.Releases += m.Releases
		for who := range m.Contributors {
			merged.Contributors[who] = struct{}{}
		}
	}
	return merged
}
