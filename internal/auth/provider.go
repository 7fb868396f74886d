// Package auth finds, validates and identifies the GitHub token used for a run.
// Authentication failures are never retried; transient ones are.
package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Scopes required of classic OAuth tokens.
const (
	ScopeRepo        = "repo"
	ScopeReadOrg     = "read:org"
	ScopeReadProject = "read:project"
)

// broader scopes that imply a narrower one
var impliedBy = map[string][]string{
	ScopeReadOrg:     {"write:org", "admin:org"},
	ScopeReadProject: {"project"},
}

// RequiredScopes lists the scopes a run needs.
func RequiredScopes(project bool) []string {
	scopes := []string{ScopeRepo, ScopeReadOrg}
	if project {
		scopes = append(scopes, ScopeReadProject)
	}
	return scopes
}

// TokenSource yields the token of an already logged in CLI.
type TokenSource interface {
	AuthToken(ctx context.Context) (string, error)
}

// Provider implements token discovery and validation.
type Provider struct {
	cli     TokenSource
	retrier *ratelimit.Retrier
	logger  *zap.Logger
	getenv  func(string) string
	base    http.RoundTripper
	baseURL *url.URL
}

// NewProvider creates a Provider that falls back to cli when no token is in the environment.
// A nil retrier uses ratelimit.DefaultBackoff.
func NewProvider(cli TokenSource, retrier *ratelimit.Retrier, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retrier == nil {
		retrier, _ = ratelimit.NewRetrier(ratelimit.DefaultBackoff, logger)
	}
	return &Provider{cli: cli, retrier: retrier, logger: logger, getenv: os.Getenv}
}

// GetToken returns GITHUB_TOKEN, GH_TOKEN or the gh CLI token, in that order.
func (p *Provider) GetToken(ctx context.Context) (string, error) {
	for _, env := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if token := strings.TrimSpace(p.getenv(env)); token != "" {
			p.logger.Debug("using token from environment", zap.String("variable", env))
			return token, nil
		}
	}
	if p.cli == nil {
		return "", apperr.NotAuthenticated(nil)
	}
	token, err := p.cli.AuthToken(ctx)
	if err != nil {
		return "", apperr.NotAuthenticated(err)
	}
	p.logger.Debug("using token from gh CLI")
	return token, nil
}

// Validate checks the token against GET /user. Classic tokens report their scopes
// in X-OAuth-Scopes; fine-grained tokens do not, and skip the scope check.
func (p *Provider) Validate(ctx context.Context, token string, required []string) error {
	_, resp, err := p.getUser(ctx, token)
	if err != nil {
		return err
	}

	header := resp.Header.Get("X-OAuth-Scopes")
	if header == "" {
		p.logger.Debug("token reports no OAuth scopes, skipping scope check")
		return nil
	}
	if missing := MissingScopes(header, required); len(missing) > 0 {
		return apperr.InsufficientScope(missing)
	}
	return nil
}

// CurrentUser returns the login the token belongs to.
func (p *Provider) CurrentUser(ctx context.Context, token string) (string, error) {
	user, _, err := p.getUser(ctx, token)
	if err != nil {
		return "", err
	}
	if user.GetLogin() == "" {
		return "", apperr.MalformedResponse("authenticated user", errors.New("login is missing"))
	}
	return user.GetLogin(), nil
}

// getUser calls GET /user, retrying rate-limited and transient failures only.
func (p *Provider) getUser(ctx context.Context, token string) (*github.User, *github.Response, error) {
	var (
		user *github.User
		resp *github.Response
	)
	err := p.retrier.Do(ctx, "GET /user", func(ctx context.Context) error {
		var err error
		user, resp, err = p.client(token).Users.Get(ctx, "")
		return err
	})
	if err != nil {
		return nil, nil, classifyUserError(err)
	}
	return user, resp, nil
}

func classifyUserError(err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Cancelled(err)
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusUnauthorized:
			return apperr.InvalidToken(err)
		case http.StatusForbidden:
			return apperr.TokenRejected(err)
		}
	}
	return apperr.Unavailable("the authenticated user", err)
}

// MissingScopes returns the required scopes not granted by an X-OAuth-Scopes header.
func MissingScopes(header string, required []string) []string {
	granted := make(map[string]bool)
	for _, s := range strings.Split(header, ",") {
		if s = strings.TrimSpace(s); s != "" {
			granted[s] = true
		}
	}

	var missing []string
	for _, scope := range required {
		if granted[scope] {
			continue
		}
		ok := false
		for _, broader := range impliedBy[scope] {
			if granted[broader] {
				ok = true
				break
			}
		}
		if !ok {
			missing = append(missing, scope)
		}
	}
	return missing
}

func (p *Provider) client(token string) *github.Client {
	httpClient := &http.Client{Transport: &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		Base:   p.base,
	}}
	client := github.NewClient(httpClient)
	if p.baseURL != nil {
		client.BaseURL = p.baseURL
	}
	return client
}
