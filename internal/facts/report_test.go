package facts

import (
	"testing"
	"time"

	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProject() *domain.Project {
	return &domain.Project{
		Ref:   domain.ProjectRef{OwnerType: domain.ProjectOwnerOrganization, Owner: "acme", Number: 1},
		Title: "Roadmap",
		Items: []domain.ProjectItem{
			{
				ID: "i1", ContentType: domain.ContentIssue, Repository: "acme/alpha", Number: 1, State: "OPEN",
				FieldValues: []domain.FieldValue{
					domain.SingleSelectValue{Field: "Status", Option: "Done"},
					domain.UserValue{Field: "Assignees", Logins: []string{"alice", "bob"}},
					domain.TextValue{Field: "Notes", Text: "n/a"},
					domain.DateValue{Field: "Due", Date: baseTime},
				},
			},
			{
				ID: "i2", ContentType: domain.ContentPullRequest, Repository: "acme/alpha", Number: 4, State: "OPEN",
				FieldValues: []domain.FieldValue{
					domain.SingleSelectValue{Field: "Status", Option: "In Progress"},
					domain.UserValue{Field: "Assignees", Logins: []string{"alice"}},
				},
			},
			{ID: "i3", ContentType: domain.ContentDraftIssue},
		},
	}
}

func TestCollectProjectFacts(t *testing.T) {
	pf := CollectProjectFacts(sampleProject())

	assert.Equal(t, 3, pf.Items)
	assert.Equal(t, map[string]int{domain.ContentIssue: 1, domain.ContentPullRequest: 1, domain.ContentDraftIssue: 1}, pf.ByType)
	assert.Equal(t, map[string]int{"acme/alpha": 2}, pf.ByRepository)
	assert.Equal(t, map[string]int{"OPEN": 2}, pf.ByState)
	assert.Equal(t, map[string]map[string]int{"Status": {"Done": 1, "In Progress": 1}}, pf.ByFieldOption)
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1}, pf.ByUser)
	assert.Equal(t, map[string]int{"Notes": 1, "Due": 1}, pf.FieldsSet)

	assert.Equal(t, 0, CollectProjectFacts(nil).Items)
}

func sampleReportInput() ReportInput {
	ds := sampleDataSet()
	ds.Truncated = map[domain.ItemKind]bool{domain.KindCommits: true}
	return ReportInput{
		Result: &domain.CollectionResult{
			RunID:    "run-1",
			Window:   window,
			DataSets: []domain.RepositoryDataSet{ds},
			Failures: []domain.RepositoryFailure{
				{Repository: "acme/gone", Kind: domain.FailureAccess, Reason: "repository acme/gone is not accessible", Recovery: []string{"Check the repository name", "Ask for read access"}},
			},
		},
		Flat: domain.FlatCollections{
			Repositories: []domain.Repository{ds.Repository},
			Commits:      ds.Commits,
			Issues:       ds.Issues,
			PullRequests: ds.PullRequests,
			Reviews:      ds.Reviews,
			Releases:     ds.Releases,
		},
		Indexes: &domain.OptimalIndexes{
			ByRepository: map[string]*domain.ItemRefs{"acme/alpha": {Commits: []int{0, 1, 2}}},
			ByAuthor: map[string]*domain.ItemRefs{
				"alice":          {Commits: []int{0, 1}},
				"ci@example.com": {Commits: []int{2}},
				"carol":          {Issues: []int{0}},
			},
			ByLabel: map[string]*domain.ItemRefs{"bug": {Issues: []int{0}}},
		},
		RepoStats: []*domain.RepoStats{{Name: "acme/alpha", LeadTimeToLastReviewSeconds: []float64{3600, 14400}}},
		Project:   sampleProject(),
	}
}

func TestBuildReport(t *testing.T) {
	report, err := BuildReport(sampleReportInput())
	require.NoError(t, err)

	expected := map[string]string{
		"runId":                              "run-1",
		"incomplete":                         "false",
		"window.since":                       "2025-03-01T00:00:00Z",
		"window.until":                       "2025-03-11T00:00:00Z",
		"windowDays":                         "10",
		"repositoriesCount":                  "2",
		"collectedRepositoriesCount":         "1",
		"failedRepositoriesCount":            "1",
		"totalIssuesCount":                   "3",
		"openIssuesCount":                    "1",
		"closedIssuesCount":                  "2",
		"commitsCount":                       "3",
		"mergedPullRequestsCount":            "1",
		"releasesCount":                      "1",
		"reviewCommentsCount":                "0",
		"contributorsCount":                  "2",
		"commitsPerDay":                      "0.3",
		"commitsPerContributor.count":        "2",
		"commitsPerContributor.gini":         "0.1667",
		"commitsPerContributor.top1Share":    "0.6667",
		"label.bug.issuesCount":              "1",
		"issueResolutionSeconds.count":       "2",
		"issueResolutionSeconds.median":      "99000",
		"pullRequestMergeSeconds.count":      "1",
		"firstReviewSeconds.count":           "2",
		"repo.acme/alpha.issuesCount":        "3",
		"repo.acme/alpha.stars":              "12",
		"repo.acme/alpha.truncated.commits":  "true",
		"failure.0.repository":               "acme/gone",
		"failure.0.kind":                     "access",
		"project.itemsCount":                 "3",
		"project.type.ISSUE.count":           "1",
		"project.repo.acme/alpha.itemsCount": "2",
		"project.field.Status.Done.count":    "1",
		"project.user.alice.itemsCount":      "2",
		"project.field.Notes.setCount":       "1",
	}
	for k, v := range expected {
		assert.Equal(t, v, report[k], "fact %s", k)
	}
	assert.Equal(t, "9000", report["repo.acme/alpha.leadTimeToLastReviewSeconds.median"])
	assert.NotContains(t, report, "label.bug.pullRequestsCount")
	assert.Equal(t, "Check the repository name", report["failure.0.recovery.0"])
	assert.Equal(t, "Ask for read access", report["failure.0.recovery.1"])
	assert.NotContains(t, report, "failure.0.recovery.2")
}

func TestBuildReportIsStable(t *testing.T) {
	first, err := BuildReport(sampleReportInput())
	require.NoError(t, err)
	second, err := BuildReport(sampleReportInput())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildReportEmptyRun(t *testing.T) {
	report, err := BuildReport(ReportInput{Result: &domain.CollectionResult{
		RunID:      "run-2",
		Incomplete: true,
		Window:     domain.Window{Until: baseTime.Add(24 * time.Hour)},
	}})
	require.NoError(t, err)

	assert.Equal(t, "0", report["totalIssuesCount"])
	assert.Equal(t, "0", report["commitsCount"])
	assert.Equal(t, "true", report["incomplete"])
	assert.Equal(t, "0", report["issueResolutionSeconds.count"])
	assert.NotContains(t, report, "issueResolutionSeconds.mean")
	assert.NotContains(t, report, "window.since")
	assert.NotContains(t, report, "project.itemsCount")
}
