package gitcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const ghBinary = "gh"

// RepoInfo is the subset of `gh repo view --json` used to target the current checkout.
type RepoInfo struct {
	NameWithOwner    string `json:"nameWithOwner"`
	DefaultBranchRef struct {
		Name string `json:"name"`
	} `json:"defaultBranchRef"`
	IsPrivate bool `json:"isPrivate"`
}

// Client wraps the gh commands the collector needs.
type Client struct {
	runner Runner
}

// New creates a Client. A nil runner means ExecRunner.
func New(runner Runner) *Client {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Client{runner: runner}
}

// AuthToken returns the token gh is logged in with.
func (c *Client) AuthToken(ctx context.Context) (string, error) {
	out, err := c.runner.Run(ctx, "", ghBinary, "auth", "token")
	if err != nil {
		return "", fmt.Errorf("failed to read gh auth token: %w", err)
	}
	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", errors.New("gh auth token returned no token")
	}
	return token, nil
}

// RepoView describes the repository checked out in dir.
func (c *Client) RepoView(ctx context.Context, dir string) (RepoInfo, error) {
	out, err := c.runner.Run(ctx, dir, ghBinary, "repo", "view", "--json", "nameWithOwner,defaultBranchRef,isPrivate")
	if err != nil {
		return RepoInfo{}, fmt.Errorf("failed to inspect current repository: %w", err)
	}
	var info RepoInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return RepoInfo{}, fmt.Errorf("failed to parse gh repo view output: %w", err)
	}
	if info.NameWithOwner == "" {
		return RepoInfo{}, errors.New("gh repo view returned no nameWithOwner")
	}
	return info, nil
}
