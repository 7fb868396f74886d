package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/auth"
	"github.com/naka-gawa/github-facts/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Version is reported to MCP clients.
var Version = "v0.1.0"

// CollectFactsParams are the arguments of the collect_facts tool.
type CollectFactsParams struct {
	Repos            []string `json:"repos,omitempty" jsonschema:"Repositories as owner/name"`
	Org              string   `json:"org,omitempty" jsonschema:"Collect every repository of this organization"`
	Project          string   `json:"project,omitempty" jsonschema:"Project (v2) as owner/number; its repositories are collected"`
	ProjectOwnerType string   `json:"projectOwnerType,omitempty" jsonschema:"Owner type of the project: org or user"`
	Since            string   `json:"since,omitempty" jsonschema:"Start of the window, YYYY/MM/DD or RFC3339"`
	Until            string   `json:"until,omitempty" jsonschema:"End of the window, YYYY/MM/DD or RFC3339"`
	Kinds            []string `json:"kinds,omitempty" jsonschema:"Item kinds to collect; all when empty"`
	MaxItems         int      `json:"maxItems,omitempty" jsonschema:"Maximum items per kind and repository; 0 means no cap"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the collect_facts tool over MCP on stdio",
	Long: `Runs a Model Context Protocol server on stdin/stdout. Its collect_facts tool
takes the same targets and window as the facts command and returns the facts
as a JSON object. The token is validated once at startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := newSession(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.close()

		server := mcp.NewServer(&mcp.Implementation{
			Name:    "github-facts",
			Version: Version,
		}, nil)
		mcp.AddTool(server, &mcp.Tool{
			Name:        "collect_facts",
			Description: "Collect GitHub repository activity within the rate limit and return numeric facts as a flat JSON object",
		}, s.collectFactsTool(cmd.Flags()))

		s.logger.Info("serving on stdio", zap.String("version", Version))
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return apperr.ServerStopped(err)
		}
		s.logger.Info("server stopped")
		return nil
	},
}

// collectFactsTool returns the collect_facts handler. Each call resolves its own
// configuration from flags overlaid with the call's parameters.
func (s *session) collectFactsTool(flags *pflag.FlagSet) mcp.ToolHandlerFor[CollectFactsParams, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, params CollectFactsParams) (*mcp.CallToolResult, any, error) {
		facts, err := s.collectFacts(ctx, flags, params)
		if err != nil {
			s.logger.Warn("collect_facts failed", zap.Error(err))
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: toolError(err)}},
				IsError: true,
			}, nil, nil
		}
		data, err := json.Marshal(facts)
		if err != nil {
			return nil, nil, apperr.OutputFailed(fmt.Errorf("failed to marshal facts: %w", err))
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil, nil
	}
}

func (s *session) collectFacts(ctx context.Context, flags *pflag.FlagSet, params CollectFactsParams) (map[string]string, error) {
	v := config.New()
	if err := config.BindFlags(v, flags); err != nil {
		return nil, err
	}
	if len(params.Repos) > 0 {
		v.Set(config.KeyRepo, params.Repos)
	}
	if params.Org != "" {
		v.Set(config.KeyOrg, params.Org)
	}
	if params.Project != "" {
		v.Set(config.KeyProject, params.Project)
	}
	if params.ProjectOwnerType != "" {
		v.Set(config.KeyProjectOwner, params.ProjectOwnerType)
	}
	if params.Since != "" {
		v.Set(config.KeySince, params.Since)
	}
	if params.Until != "" {
		v.Set(config.KeyUntil, params.Until)
	}
	if len(params.Kinds) > 0 {
		v.Set(config.KeyKinds, params.Kinds)
	}
	if params.MaxItems != 0 {
		v.Set(config.KeyMaxItems, params.MaxItems)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	// Project boards need read:project, which the startup check did not ask for.
	if cfg.Project != nil {
		if err := s.auth.Validate(ctx, s.token, auth.RequiredScopes(true)); err != nil {
			return nil, err
		}
	}

	report, err := s.aggregator().Aggregate(ctx, requestFrom(cfg, nil))
	if err != nil {
		return nil, err
	}
	return report.Facts, nil
}

// toolError renders err and its recovery instructions as plain text.
func toolError(err error) string {
	err = apperr.Wrap(err)
	var b strings.Builder
	fmt.Fprintf(&b, "Error: %v", err)
	if recovery := apperr.RecoveryOf(err); len(recovery) > 0 {
		b.WriteString("\nTo fix this:")
		for _, r := range recovery {
			fmt.Fprintf(&b, "\n  - %s", r)
		}
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	flags := serveCmd.Flags()
	flags.Int(config.KeyConcurrency, config.DefaultConcurrency, "Repositories collected in parallel per call")
	flags.Duration(config.KeyTimeout, config.DefaultTimeout, "Hard deadline of one collect_facts call")
	flags.Int(config.KeyPerRepoEstimate, config.DefaultPerRepoEstimate, "Expected items per kind and repository, used to estimate the API cost")
	flags.Duration(config.KeyWatchInterval, config.DefaultWatchInterval, "How often the rate limit is re-checked during a call")
	flags.Bool(config.KeyIncludeArchived, false, "Include archived repositories of an org")
}
