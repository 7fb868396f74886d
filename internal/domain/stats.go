// Package domain contains the core data structures and domain logic for the application.
package domain

import "time"

// RepoStats holds the activity counts for a single repository.
// It is the per-repository summary surfaced next to the merged metrics.
type RepoStats struct {
	Name                        string    `json:"name"`
	Commits                     int       `json:"commits"`
	Issues                      int       `json:"issues"`
	PullRequests                int       `json:"pull_requests"`
	Reviews                     int       `json:"reviews"`
	LeadTimeToLastReviewSeconds []float64 `json:"lead_time_to_last_review_seconds,omitempty"`
}

// ActivityMetrics aggregates counts over a bounded time window.
// Counts are summed when merged; contributors are a set union.
type ActivityMetrics struct {
	Window Window `json:"window"`

	Commits             int `json:"commits"`
	Issues              int `json:"issues"`
	OpenIssues          int `json:"open_issues"`
	ClosedIssues        int `json:"closed_issues"`
	IssuesOpenedInRange int `json:"issues_opened_in_range"`
	IssuesClosedInRange int `json:"issues_closed_in_range"`
	PullRequests        int `json:"pull_requests"`
	OpenPullRequests    int `json:"open_pull_requests"`
	ClosedPullRequests  int `json:"closed_pull_requests"`
	MergedPullRequests  int `json:"merged_pull_requests"`
	IssueComments       int `json:"issue_comments"`
	Reviews             int `json:"reviews"`
	ReviewComments      int `json:"review_comments"`
	Releases            int `json:"releases"`

	// Contributors is the set of commit author logins (or emails when no login is linked).
	Contributors map[string]struct{} `json:"-"`
}

// ContributorCount returns the number of distinct contributors.
func (m ActivityMetrics) ContributorCount() int {
	return len(m.Contributors)
}

// Days returns the window length in days, never less than one.
func (m ActivityMetrics) Days() float64 {
	return m.Window.Days()
}

// CommitsPerDay is the average number of commits per day in the window.
func (m ActivityMetrics) CommitsPerDay() float64 {
	return float64(m.Commits) / m.Days()
}

// IssuesPerDay is the average number of issues opened per day in the window.
func (m ActivityMetrics) IssuesPerDay() float64 {
	return float64(m.IssuesOpenedInRange) / m.Days()
}

// PullRequestsPerDay is the average number of pull requests per day in the window.
func (m ActivityMetrics) PullRequestsPerDay() float64 {
	return float64(m.PullRequests) / m.Days()
}

// Window is the time range a collection run covers. A zero Since means unbounded.
type Window struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// Contains reports whether t falls within the window (inclusive on both ends).
func (w Window) Contains(t time.Time) bool {
	if !w.Since.IsZero() && t.Before(w.Since) {
		return false
	}
	if !w.Until.IsZero() && t.After(w.Until) {
		return false
	}
	return true
}

// Days returns the number of days the window spans, with a floor of one.
// An unbounded start yields one day; callers should pass a bounded window for rates.
func (w Window) Days() float64 {
	if w.Since.IsZero() || w.Until.IsZero() {
		return 1
	}
	d := w.Until.Sub(w.Since).Hours() / 24
	if d < 1 {
		return 1
	}
	return d
}
