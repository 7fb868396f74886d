package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/config"
	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/naka-gawa/github-facts/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReport(t *testing.T) {
	facts := map[string]string{
		"commitsCount":             "12",
		"failure.0.reason":         "line one\nline two",
		"repo.acme/api.starsCount": "3",
	}

	testCases := []struct {
		name     string
		format   string
		expected string
	}{
		{
			name:     "key value lines are sorted and single line",
			format:   config.FormatKeyValue,
			expected: "commitsCount=12\nfailure.0.reason=line one line two\nrepo.acme/api.starsCount=3\n",
		},
		{
			name:   "json is indented with sorted keys",
			format: config.FormatJSON,
			expected: `{
  "commitsCount": "12",
  "failure.0.reason": "line one\nline two",
  "repo.acme/api.starsCount": "3"
}
`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeReport(&buf, facts, tc.format))
			assert.Equal(t, tc.expected, buf.String())
		})
	}
}

func TestWriteReport_JSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, map[string]string{"runId": "run-1"}, config.FormatJSON))

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, map[string]string{"runId": "run-1"}, decoded)
}

func TestPrintError(t *testing.T) {
	color.NoColor = true
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("application errors list their recovery", func(t *testing.T) {
		var buf bytes.Buffer
		printError(&buf, apperr.RateLimited(now.Add(90*time.Second), now, nil))

		out := buf.String()
		assert.Contains(t, out, "Error: ")
		assert.Contains(t, out, "Retry after: 1m30s")
		assert.Contains(t, out, "To fix this:\n  - ")
	})

	t.Run("plain errors get generic recovery", func(t *testing.T) {
		var buf bytes.Buffer
		printError(&buf, errors.New("boom"))
		assert.Equal(t, "Error: command failed: boom\n"+
			"To fix this:\n"+
			"  - Run the command with --help to check its usage\n"+
			"  - Run again with --verbose to see what failed\n", buf.String())
	})
}

func TestToolError(t *testing.T) {
	msg := toolError(apperr.NotAuthenticated(nil))
	assert.Contains(t, msg, "Error: not authenticated with GitHub")
	assert.Contains(t, msg, "\nTo fix this:\n  - Run `gh auth login`")

	plain := toolError(errors.New("boom"))
	assert.Contains(t, plain, "Error: command failed: boom")
	assert.Contains(t, plain, "\nTo fix this:\n  - ")
}

func TestLimitFacts(t *testing.T) {
	reset := time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC)
	usage := domain.RateLimitUsage{
		REST:    domain.Quota{Limit: 5000, Remaining: 120, ResetAt: reset},
		GraphQL: domain.Quota{Limit: 5000, Remaining: 5000},
	}
	est := ratelimit.CostEstimate{EstimatedCalls: 300, Remaining: 120, WaitFor: 10*time.Minute + 400*time.Millisecond}

	assert.Equal(t, map[string]string{
		"estimate.calls":       "300",
		"estimate.feasible":    "false",
		"estimate.waitSeconds": "600",
		"rest.limit":           "5000",
		"rest.remaining":       "120",
		"rest.resetAt":         "2025-01-01T01:00:00Z",
		"graphql.limit":        "5000",
		"graphql.remaining":    "5000",
	}, limitFacts(usage, est))
}
