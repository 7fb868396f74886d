package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCLI struct {
	token string
	err   error
}

func (f fakeCLI) AuthToken(ctx context.Context) (string, error) {
	return f.token, f.err
}

func setupTestProvider(t *testing.T, handler http.Handler) (*Provider, *httptest.Server) {
	server := httptest.NewServer(handler)
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)

	retrier, err := ratelimit.NewRetrier(ratelimit.Backoff{
		BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond, MaxRetries: 2,
	}, nil)
	require.NoError(t, err)

	p := NewProvider(nil, retrier, nil)
	p.base = server.Client().Transport
	p.baseURL = baseURL
	return p, server
}

func TestProvider_GetToken(t *testing.T) {
	testCases := []struct {
		name        string
		env         map[string]string
		cli         TokenSource
		expected    string
		expectError bool
	}{
		{name: "GITHUB_TOKEN wins", env: map[string]string{"GITHUB_TOKEN": "a", "GH_TOKEN": "b"}, cli: fakeCLI{token: "c"}, expected: "a"},
		{name: "GH_TOKEN second", env: map[string]string{"GH_TOKEN": "b"}, cli: fakeCLI{token: "c"}, expected: "b"},
		{name: "gh CLI last", cli: fakeCLI{token: "c"}, expected: "c"},
		{name: "nothing available", cli: fakeCLI{err: errors.New("not logged in")}, expectError: true},
		{name: "no cli configured", expectError: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewProvider(tc.cli, nil, nil)
			p.getenv = func(k string) string { return tc.env[k] }

			token, err := p.GetToken(context.Background())
			if tc.expectError {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.KindAuth))
				assert.Contains(t, apperr.RecoveryOf(err)[0], "gh auth login")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, token)
		})
	}
}

func TestProvider_Validate(t *testing.T) {
	testCases := []struct {
		name           string
		handlerFunc    func(w http.ResponseWriter, r *http.Request)
		required       []string
		expectError    bool
		expectKind     apperr.Kind
		expectedErrMsg string
	}{
		{
			name: "happy path - classic token with scopes",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				w.Header().Set("X-OAuth-Scopes", "repo, admin:org, project")
				fmt.Fprint(w, `{"login": "octocat"}`)
			},
			required: RequiredScopes(true),
		},
		{
			name: "happy path - fine-grained token has no scope header",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"login": "octocat"}`)
			},
			required: RequiredScopes(true),
		},
		{
			name: "error case - missing scope is named",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-OAuth-Scopes", "repo, read:org")
				fmt.Fprint(w, `{"login": "octocat"}`)
			},
			required:       RequiredScopes(true),
			expectError:    true,
			expectKind:     apperr.KindAuth,
			expectedErrMsg: "read:project",
		},
		{
			name: "error case - expired token",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"message": "Bad credentials"}`)
			},
			required:       RequiredScopes(false),
			expectError:    true,
			expectKind:     apperr.KindAuth,
			expectedErrMsg: "invalid or expired",
		},
		{
			name: "error case - token refused under SSO enforcement",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, `{"message": "Resource protected by organization SAML enforcement."}`)
			},
			required:       RequiredScopes(false),
			expectError:    true,
			expectKind:     apperr.KindAuth,
			expectedErrMsg: "refused",
		},
		{
			name: "error case - server error",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"message": "Server Error"}`)
			},
			required:       RequiredScopes(false),
			expectError:    true,
			expectKind:     apperr.KindTransient,
			expectedErrMsg: "authenticated user",
		},
		{
			name: "error case - service unavailable past the retry budget",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, `{"message": "Unavailable"}`)
			},
			required:       RequiredScopes(false),
			expectError:    true,
			expectKind:     apperr.KindTransient,
			expectedErrMsg: "kept failing",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, server := setupTestProvider(t, http.HandlerFunc(tc.handlerFunc))
			defer server.Close()

			err := p.Validate(context.Background(), "secret", tc.required)
			if tc.expectError {
				require.Error(t, err)
				assert.Equal(t, tc.expectKind, apperr.KindOf(err))
				assert.Contains(t, err.Error(), tc.expectedErrMsg)
				assert.NotEmpty(t, apperr.RecoveryOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestProvider_ValidateRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	p, server := setupTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"login": "octocat"}`)
	}))
	defer server.Close()

	require.NoError(t, p.Validate(context.Background(), "secret", RequiredScopes(false)))
	assert.Equal(t, int32(2), calls.Load())
}

func TestProvider_ValidateCancelled(t *testing.T) {
	p, server := setupTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"login": "octocat"}`)
	}))
	defer server.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Validate(ctx, "secret", RequiredScopes(false))

	require.Error(t, err)
	assert.Equal(t, apperr.KindCancelled, apperr.KindOf(err))
	assert.NotEmpty(t, apperr.RecoveryOf(err))
}

func TestProvider_CurrentUser(t *testing.T) {
	p, server := setupTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		fmt.Fprint(w, `{"login": "octocat", "id": 1}`)
	}))
	defer server.Close()

	login, err := p.CurrentUser(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, "octocat", login)
}

func TestMissingScopes(t *testing.T) {
	assert.Empty(t, MissingScopes("repo, read:org", RequiredScopes(false)))
	assert.Equal(t, []string{"read:org"}, MissingScopes("repo", RequiredScopes(false)))
	assert.Equal(t, []string{"repo", "read:project"}, MissingScopes("write:org", RequiredScopes(true)))
}
