package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_RoundTrip(t *testing.T) {
	reset := time.Now().Add(30 * time.Minute).Unix()
	testCases := []struct {
		name          string
		handlerFunc   func(w http.ResponseWriter, r *http.Request)
		expectLimit   bool
		expectStatus  int
		expectedQuota int
	}{
		{
			name: "successful response updates the budget",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-RateLimit-Limit", "5000")
				w.Header().Set("X-RateLimit-Remaining", "4000")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
				w.WriteHeader(http.StatusOK)
				fmt.Fprint(w, `[]`)
			},
			expectStatus:  http.StatusOK,
			expectedQuota: 4000,
		},
		{
			name: "429 becomes a limit error",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
			},
			expectLimit: true,
		},
		{
			name: "403 with no remaining budget becomes a limit error",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-RateLimit-Limit", "5000")
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
			},
			expectLimit: true,
		},
		{
			name: "plain 403 passes through",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-RateLimit-Limit", "5000")
				w.Header().Set("X-RateLimit-Remaining", "4999")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, `{"message": "Resource not accessible by integration"}`)
			},
			expectStatus:  http.StatusForbidden,
			expectedQuota: 4999,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tc.handlerFunc))
			defer server.Close()

			budget := NewBudget()
			client := &http.Client{Transport: NewTransport(nil, budget, nil)}
			resp, err := client.Get(server.URL + "/repos/o/r/issues")
			if tc.expectLimit {
				var limitErr *LimitError
				require.ErrorAs(t, err, &limitErr)
				assert.False(t, limitErr.Local)
				assert.False(t, limitErr.ResetAt.IsZero())
				return
			}
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.expectStatus, resp.StatusCode)
			q, known := budget.Quota(domain.PoolCore)
			assert.True(t, known)
			assert.Equal(t, tc.expectedQuota, q.Remaining)
		})
	}
}

func TestTransport_HoldsBackWhenBudgetIsEmpty(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	budget := NewBudget()
	budget.Observe(domain.PoolCore, domain.Quota{Limit: 5000, Remaining: 0, ResetAt: time.Now().Add(time.Hour)})
	client := &http.Client{Transport: NewTransport(nil, budget, nil)}

	_, err := client.Get(server.URL + "/repos/o/r")
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.True(t, limitErr.Local)
	assert.Equal(t, 0, calls)

	// The rate limit endpoint is never held back.
	resp, err := client.Get(server.URL + "/rate_limit")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1, calls)
}
