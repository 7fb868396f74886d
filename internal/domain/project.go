package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProjectOwnerType selects whether a project belongs to an organization or a user.
type ProjectOwnerType string

const (
	ProjectOwnerOrganization ProjectOwnerType = "org"
	ProjectOwnerUser         ProjectOwnerType = "user"
)

// ProjectRef identifies a Project (v2) board.
type ProjectRef struct {
	OwnerType ProjectOwnerType
	Owner     string
	Number    int
}

func (r ProjectRef) String() string {
	return fmt.Sprintf("%s:%s#%d", r.OwnerType, r.Owner, r.Number)
}

// Validate checks the reference is usable.
func (r ProjectRef) Validate() error {
	if r.OwnerType != ProjectOwnerOrganization && r.OwnerType != ProjectOwnerUser {
		return fmt.Errorf("invalid project owner type %q: expected org or user", r.OwnerType)
	}
	if strings.TrimSpace(r.Owner) == "" {
		return fmt.Errorf("project owner is required")
	}
	if r.Number <= 0 {
		return fmt.Errorf("project number must be positive, got %d", r.Number)
	}
	return nil
}

// Project is a Project (v2) board with its items.
type Project struct {
	Ref   ProjectRef    `json:"-"`
	ID    string        `json:"id"`
	Title string        `json:"title"`
	Items []ProjectItem `json:"items"`
}

// Content types of a project item.
const (
	ContentIssue       = "ISSUE"
	ContentPullRequest = "PULL_REQUEST"
	ContentDraftIssue  = "DRAFT_ISSUE"
)

// ProjectItem is a card on the board.
type ProjectItem struct {
	ID          string       `json:"id"`
	ContentType string       `json:"content_type"`
	Repository  string       `json:"repository,omitempty"`
	Number      int          `json:"number,omitempty"`
	State       string       `json:"state,omitempty"`
	FieldValues []FieldValue `json:"-"`
	// Raw is the queried GraphQL node re-encoded; fields the query does not
	// select are absent.
	Raw json.RawMessage `json:"raw"`
}

// Repositories returns the distinct repositories referenced by the project items, sorted.
func (p *Project) Repositories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, item := range p.Items {
		if item.Repository == "" {
			continue
		}
		if _, ok := seen[item.Repository]; ok {
			continue
		}
		seen[item.Repository] = struct{}{}
		out = append(out, item.Repository)
	}
	sort.Strings(out)
	return out
}

// FieldValue is a project item field value. The concrete variants are
// TextValue, SingleSelectValue, DateValue, UserValue and RepositoryValue.
type FieldValue interface {
	FieldName() string
	fieldValue()
}

type TextValue struct {
	Field string
	Text  string
}

type SingleSelectValue struct {
	Field  string
	Option string
}

type DateValue struct {
	Field string
	Date  time.Time
}

type UserValue struct {
	Field  string
	Logins []string
}

type RepositoryValue struct {
	Field      string
	Repository string
}

func (v TextValue) FieldName() string         { return v.Field }
func (v SingleSelectValue) FieldName() string { return v.Field }
func (v DateValue) FieldName() string         { return v.Field }
func (v UserValue) FieldName() string         { return v.Field }
func (v RepositoryValue) FieldName() string   { return v.Field }

func (TextValue) fieldValue()         {}
func (SingleSelectValue) fieldValue() {}
func (DateValue) fieldValue()         {}
func (UserValue) fieldValue()         {}
func (RepositoryValue) fieldValue()   {}
