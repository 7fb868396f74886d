package cmd

import (
	"context"

	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/auth"
	"github.com/naka-gawa/github-facts/internal/config"
	"github.com/naka-gawa/github-facts/internal/gateway"
	"github.com/naka-gawa/github-facts/internal/gitcli"
	"github.com/naka-gawa/github-facts/internal/logger"
	"github.com/naka-gawa/github-facts/internal/ratelimit"
	"github.com/naka-gawa/github-facts/internal/usecase"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// session holds the dependencies of one authenticated invocation.
type session struct {
	cfg     *config.Config
	logger  *zap.Logger
	token   string
	auth    *auth.Provider
	gh      *gitcli.Client
	gateway *gateway.GitHubGateway
	monitor *ratelimit.Monitor
}

// loadConfig resolves flags, environment and defaults for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return config.Load(v)
}

// newSession finds and validates the token and wires the gateway and monitor
// around one shared rate limit budget.
func newSession(ctx context.Context, cfg *config.Config) (*session, error) {
	log, err := logger.New(cfg.LogLevel, cfg.Verbose)
	if err != nil {
		return nil, apperr.InvalidConfig(err)
	}

	retrier, err := ratelimit.NewRetrier(cfg.Backoff, log)
	if err != nil {
		return nil, apperr.InvalidConfig(err)
	}

	gh := gitcli.New(nil)
	provider := auth.NewProvider(gh, retrier, log)
	token, err := provider.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	if err := provider.Validate(ctx, token, auth.RequiredScopes(cfg.Project != nil)); err != nil {
		return nil, err
	}

	budget := ratelimit.NewBudget()
	githubGateway, err := gateway.NewGitHubGateway(token, gateway.Options{
		Budget:  budget,
		Backoff: cfg.Backoff,
		Logger:  log,
	})
	if err != nil {
		return nil, apperr.InvalidConfig(err)
	}

	return &session{
		cfg:     cfg,
		logger:  log,
		token:   token,
		auth:    provider,
		gh:      gh,
		gateway: githubGateway,
		monitor: ratelimit.NewMonitor(githubGateway.REST(), budget, retrier, log),
	}, nil
}

func (s *session) close() {
	_ = s.logger.Sync()
}

func (s *session) aggregator() *usecase.Aggregator {
	return usecase.NewAggregator(s.gateway, s.monitor, s.gh, s.logger)
}

func (s *session) request(progress usecase.ProgressFunc) usecase.Request {
	return requestFrom(s.cfg, progress)
}

// requestFrom maps a configuration onto an aggregation request.
func requestFrom(cfg *config.Config, progress usecase.ProgressFunc) usecase.Request {
	return usecase.Request{
		Repos:           cfg.Repos,
		Org:             cfg.Org,
		IncludeArchived: cfg.IncludeArchived,
		Project:         cfg.Project,
		Dir:             cfg.Dir,
		Window:          cfg.Window,
		Kinds:           cfg.Kinds,
		MaxItems:        cfg.MaxItems,
		Concurrency:     cfg.Concurrency,
		Timeout:         cfg.Timeout,
		PerRepoEstimate: cfg.PerRepoEstimate,
		WatchInterval:   cfg.WatchInterval,
		OnProgress:      progress,
	}
}
