package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestMonitor(t *testing.T, handler http.Handler) (*Monitor, *Budget, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := github.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = baseURL

	budget := NewBudget()
	retrier, err := NewRetrier(Backoff{BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond, MaxRetries: 2}, nil)
	require.NoError(t, err)
	return NewMonitor(client, budget, retrier, nil), budget, server
}

func rateLimitBody(coreRemaining, graphqlRemaining int, reset int64) string {
	return fmt.Sprintf(`{"resources": {
		"core": {"limit": 5000, "remaining": %d, "reset": %d},
		"graphql": {"limit": 5000, "remaining": %d, "reset": %d},
		"search": {"limit": 30, "remaining": 30, "reset": %d}
	}}`, coreRemaining, reset, graphqlRemaining, reset, reset)
}

func TestMonitor_CheckLimits(t *testing.T) {
	reset := time.Now().Add(time.Hour).Unix()
	testCases := []struct {
		name        string
		handlerFunc func(w http.ResponseWriter, r *http.Request)
		expectKind  apperr.Kind
		expectError bool
	}{
		{
			name: "happy path - seeds the budget",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/rate_limit", r.URL.Path)
				fmt.Fprint(w, rateLimitBody(4200, 4900, reset))
			},
		},
		{
			name: "error case - bad credentials",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"message": "Bad credentials"}`)
			},
			expectError: true,
			expectKind:  apperr.KindAuth,
		},
		{
			name: "error case - server error",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"message": "oops"}`)
			},
			expectError: true,
			expectKind:  apperr.KindTransient,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			monitor, budget, server := setupTestMonitor(t, http.HandlerFunc(tc.handlerFunc))
			defer server.Close()

			usage, err := monitor.CheckLimits(context.Background())
			if tc.expectError {
				require.Error(t, err)
				assert.Equal(t, tc.expectKind, apperr.KindOf(err))
				assert.NotEmpty(t, apperr.RecoveryOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 4200, usage.REST.Remaining)
			assert.Equal(t, 4900, usage.GraphQL.Remaining)
			assert.Equal(t, time.Unix(reset, 0).UTC(), usage.REST.ResetAt)

			q, known := budget.Quota(domain.PoolCore)
			assert.True(t, known)
			assert.Equal(t, 4200, q.Remaining)
		})
	}
}

func TestMonitor_CheckLimitsUnreachable(t *testing.T) {
	monitor, _, server := setupTestMonitor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := monitor.CheckLimits(context.Background())

	require.Error(t, err)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
	assert.NotEmpty(t, apperr.RecoveryOf(err))
}

func TestEstimateCost(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	usage := domain.RateLimitUsage{REST: domain.Quota{Limit: 5000, Remaining: 100, ResetAt: now.Add(20 * time.Minute)}}
	testCases := []struct {
		name           string
		repos          int
		perRepo        int
		kinds          []domain.ItemKind
		expectedCalls  int
		expectFeasible bool
	}{
		{name: "single page per kind", repos: 3, perRepo: 50, kinds: []domain.ItemKind{domain.KindCommits, domain.KindIssues}, expectedCalls: 9, expectFeasible: true},
		{name: "several pages", repos: 2, perRepo: 250, kinds: []domain.ItemKind{domain.KindCommits}, expectedCalls: 8, expectFeasible: true},
		{name: "zero items still costs a page", repos: 1, perRepo: 0, kinds: []domain.ItemKind{domain.KindReleases}, expectedCalls: 2, expectFeasible: true},
		{name: "reviews cost one call per pull request", repos: 1, perRepo: 40, kinds: []domain.ItemKind{domain.KindPullRequests, domain.KindReviews}, expectedCalls: 42, expectFeasible: true},
		{name: "too many repositories", repos: 40, perRepo: 100, kinds: []domain.ItemKind{domain.KindCommits, domain.KindIssues}, expectedCalls: 120, expectFeasible: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			est := EstimateCost(usage, tc.repos, tc.perRepo, tc.kinds, now)
			assert.Equal(t, tc.expectedCalls, est.EstimatedCalls)
			assert.Equal(t, tc.expectFeasible, est.Feasible)
			if tc.expectFeasible {
				assert.Zero(t, est.WaitFor)
			} else {
				assert.Equal(t, 20*time.Minute, est.WaitFor)
			}
		})
	}
}

func TestMonitor_EnsureFeasibleFailsFast(t *testing.T) {
	reset := time.Now().Add(time.Hour).Unix()
	monitor, _, server := setupTestMonitor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rateLimitBody(5, 5000, reset))
	}))
	defer server.Close()

	est, err := monitor.EnsureFeasible(context.Background(), 10, 100, domain.AllKinds)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindRateLimit))
	assert.False(t, est.Feasible)
	assert.NotEmpty(t, apperr.RecoveryOf(err))
}
