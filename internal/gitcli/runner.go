// Package gitcli runs the GitHub CLI (gh) in its JSON output mode.
package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// ErrNotInstalled is returned when the gh binary is not on PATH.
var ErrNotInstalled = errors.New("gh CLI is not installed")

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner is the production Runner.
type ExecRunner struct{}

// Run executes name with args in dir. Stderr is folded into the error.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ErrNotInstalled
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// MockRunner returns predefined responses and records every call.
type MockRunner struct {
	RunFunc func(dir, name string, args ...string) ([]byte, error)

	mu    sync.Mutex
	Calls []MockCall
}

// MockCall is a single recorded invocation.
type MockCall struct {
	Dir  string
	Name string
	Args []string
}

// Run records the call and delegates to RunFunc.
func (m *MockRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Dir: dir, Name: name, Args: args})
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.RunFunc != nil {
		return m.RunFunc(dir, name, args...)
	}
	return nil, nil
}
