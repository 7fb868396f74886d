package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/naka-gawa/github-facts/internal/ratelimit"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
)

const projectDateLayout = "2006-01-02"

// projectFieldRef reads the name shared by every field configuration type.
type projectFieldRef struct {
	Common struct {
		Name string
	} `graphql:"... on ProjectV2FieldCommon"`
}

// fieldValueNode is the ProjectV2ItemFieldValue union. The decoder fills every
// fragment sharing a key, so Typename picks the variant.
type fieldValueNode struct {
	Typename string `graphql:"__typename"`
	Text     struct {
		Text  string
		Field projectFieldRef
	} `graphql:"... on ProjectV2ItemFieldTextValue"`
	SingleSelect struct {
		Name  string
		Field projectFieldRef
	} `graphql:"... on ProjectV2ItemFieldSingleSelectValue"`
	Date struct {
		Date  string
		Field projectFieldRef
	} `graphql:"... on ProjectV2ItemFieldDateValue"`
	User struct {
		Users struct {
			Nodes []struct {
				Login string
			}
		} `graphql:"users(first: 10)"`
		Field projectFieldRef
	} `graphql:"... on ProjectV2ItemFieldUserValue"`
	Repository struct {
		Repository struct {
			NameWithOwner string
		}
		Field projectFieldRef
	} `graphql:"... on ProjectV2ItemFieldRepositoryValue"`
}

type projectContent struct {
	Number     int
	State      string
	Repository struct {
		NameWithOwner string
	}
}

type projectItemNode struct {
	ID      string
	Type    string
	Content struct {
		Typename    string         `graphql:"__typename"`
		Issue       projectContent `graphql:"... on Issue"`
		PullRequest projectContent `graphql:"... on PullRequest"`
	}
	FieldValues struct {
		Nodes []fieldValueNode
	} `graphql:"fieldValues(first: 50)"`
}

type projectV2Node struct {
	ID    string
	Title string
	Items struct {
		PageInfo struct {
			HasNextPage bool
			EndCursor   githubv4.String
		}
		Nodes []projectItemNode
	} `graphql:"items(first: 100, after: $cursor)"`
}

type rateLimitNode struct {
	Cost      int
	Remaining int
}

type orgProjectQuery struct {
	Organization struct {
		ProjectV2 *projectV2Node `graphql:"projectV2(number: $number)"`
	} `graphql:"organization(login: $owner)"`
	RateLimit rateLimitNode
}

type userProjectQuery struct {
	User struct {
		ProjectV2 *projectV2Node `graphql:"projectV2(number: $number)"`
	} `graphql:"user(login: $owner)"`
	RateLimit rateLimitNode
}

// FetchProject loads a Project (v2) board with all of its items.
func (g *GitHubGateway) FetchProject(ctx context.Context, ref domain.ProjectRef) (*domain.Project, error) {
	if err := ref.Validate(); err != nil {
		return nil, apperr.InvalidConfig(err)
	}
	g.logger.Info("fetching project", zap.String("project", ref.String()))

	variables := map[string]interface{}{
		"owner":  githubv4.String(ref.Owner),
		"number": githubv4.Int(ref.Number),
		"cursor": (*githubv4.String)(nil),
	}
	project := &domain.Project{Ref: ref, Items: []domain.ProjectItem{}}
	for {
		node, cost, err := g.queryProject(ctx, ref, variables)
		if err != nil {
			return nil, classifyGraphQL(ref, err)
		}
		if node == nil {
			return nil, apperr.TargetInaccessible("project "+ref.String(), nil)
		}
		g.logger.Debug("project page fetched", zap.Int("cost", cost), zap.Int("items", len(node.Items.Nodes)))

		project.ID = node.ID
		project.Title = node.Title
		for _, n := range node.Items.Nodes {
			item, err := convertProjectItem(n)
			if err != nil {
				return nil, apperr.MalformedResponse("items of project "+ref.String(), err)
			}
			project.Items = append(project.Items, item)
		}
		if !node.Items.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(node.Items.PageInfo.EndCursor)
	}
	g.logger.Info("completed fetching project", zap.String("title", project.Title), zap.Int("items", len(project.Items)))
	return project, nil
}

func (g *GitHubGateway) queryProject(ctx context.Context, ref domain.ProjectRef, variables map[string]interface{}) (*projectV2Node, int, error) {
	var (
		node *projectV2Node
		cost int
	)
	err := g.retrier.Do(ctx, "project "+ref.String(), func(ctx context.Context) error {
		if ref.OwnerType == domain.ProjectOwnerUser {
			var q userProjectQuery
			if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
				return err
			}
			node, cost = q.User.ProjectV2, q.RateLimit.Cost
			return nil
		}
		var q orgProjectQuery
		if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
			return err
		}
		node, cost = q.Organization.ProjectV2, q.RateLimit.Cost
		return nil
	})
	return node, cost, err
}

func classifyGraphQL(ref domain.ProjectRef, err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Cancelled(err)
	}
	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		return apperr.RateLimited(limitErr.ResetAt, timeNow(), err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "status code: 401"):
		return apperr.InvalidToken(err)
	case strings.Contains(msg, "Could not resolve to"), strings.Contains(msg, "status code: 404"):
		return apperr.TargetInaccessible("project "+ref.String(), err)
	case strings.Contains(msg, "INSUFFICIENT_SCOPES"), strings.Contains(msg, "read:project"):
		return apperr.InsufficientScope([]string{"read:project"})
	}
	return apperr.Unavailable("project "+ref.String(), err)
}

func convertProjectItem(n projectItemNode) (domain.ProjectItem, error) {
	if n.ID == "" {
		return domain.ProjectItem{}, errors.New("project item has no id")
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return domain.ProjectItem{}, fmt.Errorf("item %s: %w", n.ID, err)
	}
	item := domain.ProjectItem{ID: n.ID, ContentType: n.Type, Raw: raw}

	var content *projectContent
	switch n.Content.Typename {
	case "Issue":
		content = &n.Content.Issue
	case "PullRequest":
		content = &n.Content.PullRequest
	}
	if content != nil {
		item.Repository = content.Repository.NameWithOwner
		item.Number = content.Number
		item.State = content.State
	}

	for _, fv := range n.FieldValues.Nodes {
		value, ok, err := convertFieldValue(fv)
		if err != nil {
			return domain.ProjectItem{}, fmt.Errorf("item %s: %w", n.ID, err)
		}
		if ok {
			item.FieldValues = append(item.FieldValues, value)
		}
	}
	return item, nil
}

// convertFieldValue maps the union variants the facts use. Other variants
// (number, iteration, labels, milestones, ...) are skipped.
func convertFieldValue(fv fieldValueNode) (domain.FieldValue, bool, error) {
	switch fv.Typename {
	case "ProjectV2ItemFieldTextValue":
		return domain.TextValue{Field: fv.Text.Field.Common.Name, Text: fv.Text.Text}, true, nil
	case "ProjectV2ItemFieldSingleSelectValue":
		return domain.SingleSelectValue{Field: fv.SingleSelect.Field.Common.Name, Option: fv.SingleSelect.Name}, true, nil
	case "ProjectV2ItemFieldDateValue":
		d, err := time.Parse(projectDateLayout, fv.Date.Date)
		if err != nil {
			return nil, false, fmt.Errorf("date field %q: %w", fv.Date.Field.Common.Name, err)
		}
		return domain.DateValue{Field: fv.Date.Field.Common.Name, Date: d}, true, nil
	case "ProjectV2ItemFieldUserValue":
		logins := make([]string, 0, len(fv.User.Users.Nodes))
		for _, u := range fv.User.Users.Nodes {
			logins = append(logins, u.Login)
		}
		return domain.UserValue{Field: fv.User.Field.Common.Name, Logins: logins}, true, nil
	case "ProjectV2ItemFieldRepositoryValue":
		return domain.RepositoryValue{Field: fv.Repository.Field.Common.Name, Repository: fv.Repository.Repository.NameWithOwner}, true, nil
	}
	return nil, false, nil
}
