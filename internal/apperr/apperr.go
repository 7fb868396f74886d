// Package apperr defines the error taxonomy of the application.
// Every error carries at least one recovery instruction telling the user what to do next.
package apperr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies an error by how the caller should react to it.
type Kind string

const (
	KindAuth             Kind = "auth"
	KindRateLimit        Kind = "rate_limit"
	KindTransient        Kind = "transient"
	KindRepositoryAccess Kind = "repository_access"
	KindDataShape        Kind = "data_shape"
	KindConfig           Kind = "config"
	KindTimeout          Kind = "timeout"
	KindCancelled        Kind = "cancelled"
	KindOutput           Kind = "output"
)

// ErrNoRecovery is returned by New when no usable recovery instruction is given.
var ErrNoRecovery = errors.New("apperr: at least one non-empty recovery instruction is required")

// Error is an application error with recovery instructions.
type Error struct {
	Kind     Kind
	Message  string
	Recovery []string
	// RetryAfter is the recommended wait before trying again, zero when not applicable.
	RetryAfter time.Duration
	Err        error
}

// New builds an Error. It fails when recovery is empty or any instruction is blank.
func New(kind Kind, message string, recovery []string, cause error) (*Error, error) {
	if len(recovery) == 0 {
		return nil, ErrNoRecovery
	}
	cleaned := make([]string, 0, len(recovery))
	for _, r := range recovery {
		r = strings.TrimSpace(r)
		if r == "" {
			return nil, ErrNoRecovery
		}
		cleaned = append(cleaned, r)
	}
	return &Error{Kind: kind, Message: message, Recovery: cleaned, Err: cause}, nil
}

// must is used by the constructors below, whose instructions are never empty.
func must(e *Error, err error) *Error {
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// RecoveryOf returns the recovery instructions of err, if any.
func RecoveryOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Recovery
	}
	return nil
}

// NotAuthenticated is returned when no token can be found.
func NotAuthenticated(cause error) *Error {
	return must(New(KindAuth, "not authenticated with GitHub", []string{
		"Run `gh auth login` to authenticate the GitHub CLI",
		"Or export GITHUB_TOKEN with a personal access token",
	}, cause))
}

// InvalidToken is returned for expired, revoked or malformed tokens.
func InvalidToken(cause error) *Error {
	return must(New(KindAuth, "GitHub token is invalid or expired", []string{
		"Run `gh auth refresh` or `gh auth login` to obtain a new token",
		"If GITHUB_TOKEN is set, replace it with a valid personal access token",
	}, cause))
}

// InsufficientScope is returned when the token lacks required OAuth scopes.
func InsufficientScope(missing []string) *Error {
	scopes := strings.Join(missing, ",")
	return must(New(KindAuth, fmt.Sprintf("GitHub token is missing required scopes: %s", scopes), []string{
		fmt.Sprintf("Run `gh auth refresh -s %s` to grant the missing scopes", scopes),
		"Or create a personal access token with these scopes at https://github.com/settings/tokens",
	}, nil))
}

// RateLimited is returned when the budget is exhausted or retries ran out.
func RateLimited(resetAt time.Time, now time.Time, cause error) *Error {
	wait := resetAt.Sub(now)
	if wait < 0 {
		wait = 0
	}
	wait = wait.Round(time.Second)
	e := must(New(KindRateLimit, "GitHub API rate limit exhausted", []string{
		fmt.Sprintf("Wait %s (until %s) for the rate limit to reset, then run again", wait, resetAt.Format(time.RFC3339)),
		"Reduce the scope with --since, --max-items or fewer repositories",
	}, cause))
	e.RetryAfter = wait
	return e
}

// Transient is returned when a retryable network failure persisted past the retry budget.
func Transient(wait time.Duration, cause error) *Error {
	e := must(New(KindTransient, "GitHub API request kept failing", []string{
		fmt.Sprintf("Wait about %s and run again", wait.Round(time.Second)),
		"Check network connectivity and https://www.githubstatus.com",
	}, cause))
	e.RetryAfter = wait
	return e
}

// RepositoryInaccessible is returned for 404/403/451 on a repository.
func RepositoryInaccessible(repo string, status int, cause error) *Error {
	var msg string
	switch status {
	case 404:
		msg = fmt.Sprintf("repository %s not found", repo)
	case 451:
		msg = fmt.Sprintf("repository %s is unavailable for legal reasons", repo)
	default:
		msg = fmt.Sprintf("access to repository %s is forbidden", repo)
	}
	return must(New(KindRepositoryAccess, msg, []string{
		fmt.Sprintf("Check that %s exists and is spelled owner/name", repo),
		"Grant the token access to the repository (repo scope, or add it to the fine-grained token)",
	}, cause))
}

// MalformedResponse is returned when an upstream payload cannot be decoded or misses required fields.
func MalformedResponse(what string, cause error) *Error {
	return must(New(KindDataShape, fmt.Sprintf("malformed GitHub response for %s", what), []string{
		"Run again with --verbose to see the failing request",
		"Report the payload if it persists; GitHub may have changed the API shape",
	}, cause))
}

// InvalidConfig is returned for unusable flags or environment values.
func InvalidConfig(cause error) *Error {
	return must(New(KindConfig, "invalid configuration", []string{
		"Run with --help to see the accepted flags and formats",
	}, cause))
}

// TimedOut is recorded for repositories that did not finish before the run deadline.
func TimedOut(repo string, cause error) *Error {
	return must(New(KindTimeout, fmt.Sprintf("collection of %s did not finish before the deadline", repo), []string{
		"Increase --timeout",
		"Narrow the window with --since or lower --max-items",
	}, cause))
}

// TargetInaccessible is returned when an organization or project cannot be resolved.
func TargetInaccessible(target string, cause error) *Error {
	return must(New(KindRepositoryAccess, fmt.Sprintf("%s not found or not visible to the token", target), []string{
		fmt.Sprintf("Check that %s exists and is spelled correctly", target),
		"Grant the token the read:org scope, plus read:project for projects",
	}, cause))
}

// Unavailable is returned when GitHub answers a non-repository request with an
// unexpected failure, or cannot be reached at all.
func Unavailable(what string, cause error) *Error {
	return must(New(KindTransient, fmt.Sprintf("GitHub request for %s failed", what), []string{
		"Run again in a few minutes; check https://www.githubstatus.com for incidents",
		"Run again with --verbose to see the failing request",
	}, cause))
}

// TokenRejected is returned when GitHub refuses a token it recognizes, e.g. under SAML SSO enforcement.
func TokenRejected(cause error) *Error {
	return must(New(KindAuth, "GitHub refused the token", []string{
		"If the organization enforces SAML SSO, authorize the token for it at https://github.com/settings/tokens",
		"Run `gh auth refresh` or export GITHUB_TOKEN with a token that is allowed to read the targets",
	}, cause))
}

// Cancelled is returned when the run is interrupted before it finishes.
func Cancelled(cause error) *Error {
	return must(New(KindCancelled, "run was cancelled before it finished", []string{
		"Run the command again; no partial report is written",
	}, cause))
}

// OutputFailed is returned when the report cannot be written.
func OutputFailed(cause error) *Error {
	return must(New(KindOutput, "failed to write the report", []string{
		"Check that standard output is writable (closed pipe or full disk)",
	}, cause))
}

// ServerStopped is returned when the MCP transport fails while serving.
func ServerStopped(cause error) *Error {
	return must(New(KindOutput, "MCP server stopped unexpectedly", []string{
		"Restart the server from the MCP client",
		"Run with --verbose to see the transport error",
	}, cause))
}

// Wrap returns err unchanged when it already carries recovery instructions and
// otherwise attaches generic ones, so every error reaching the user has a next step.
func Wrap(err error) error {
	if err == nil || len(RecoveryOf(err)) > 0 {
		return err
	}
	return must(New(KindConfig, "command failed", []string{
		"Run the command with --help to check its usage",
		"Run again with --verbose to see what failed",
	}, err))
}
