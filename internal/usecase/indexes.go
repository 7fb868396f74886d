package usecase

import (
	"fmt"

	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/domain"
)

// Flatten concatenates the data sets into flat per-kind arrays, in data set order.
func Flatten(datasets []domain.RepositoryDataSet) domain.FlatCollections {
	flat := domain.FlatCollections{
		Repositories:   []domain.Repository{},
		Commits:        []domain.Commit{},
		Issues:         []domain.Issue{},
		PullRequests:   []domain.PullRequest{},
		IssueComments:  []domain.IssueComment{},
		Reviews:        []domain.Review{},
		ReviewComments: []domain.ReviewComment{},
		Releases:       []domain.Release{},
	}
	for _, ds := range datasets {
		flat.Repositories = append(flat.Repositories, ds.Repository)
		flat.Commits = append(flat.Commits, ds.Commits...)
		flat.Issues = append(flat.Issues, ds.Issues...)
		flat.PullRequests = append(flat.PullRequests, ds.PullRequests...)
		flat.IssueComments = append(flat.IssueComments, ds.IssueComments...)
		flat.Reviews = append(flat.Reviews, ds.Reviews...)
		flat.ReviewComments = append(flat.ReviewComments, ds.ReviewComments...)
		flat.Releases = append(flat.Releases, ds.Releases...)
	}
	return flat
}

// indexBuilder accumulates positions into the three lookup tables.
type indexBuilder struct {
	idx *domain.OptimalIndexes
}

func refsFor(m map[string]*domain.ItemRefs, key string) *domain.ItemRefs {
	refs, ok := m[key]
	if !ok {
		refs = &domain.ItemRefs{}
		m[key] = refs
	}
	return refs
}

func (b *indexBuilder) add(repo, author string, labels []string, pick func(*domain.ItemRefs) *[]int, pos int) {
	p := pick(refsFor(b.idx.ByRepository, repo))
	*p = append(*p, pos)
	if author != "" {
		p = pick(refsFor(b.idx.ByAuthor, author))
		*p = append(*p, pos)
	}
	for _, l := range labels {
		p = pick(refsFor(b.idx.ByLabel, l))
		*p = append(*p, pos)
	}
}

// BuildIndexes builds the repository, author and label lookup tables over flat.
// An item without repository, identifier or timestamp is rejected.
func BuildIndexes(flat domain.FlatCollections) (*domain.OptimalIndexes, error) {
	b := &indexBuilder{idx: &domain.OptimalIndexes{
		ByRepository: map[string]*domain.ItemRefs{},
		ByAuthor:     map[string]*domain.ItemRefs{},
		ByLabel:      map[string]*domain.ItemRefs{},
	}}

	for i, r := range flat.Repositories {
		if r.FullName == "" {
			return nil, invalidItem("repository", i, "full name")
		}
		refsFor(b.idx.ByRepository, r.FullName)
	}

	for i, c := range flat.Commits {
		if err := check("commit", i, c.Repository, c.SHA != "", c.Timestamp().IsZero()); err != nil {
			return nil, err
		}
		b.add(c.Repository, c.Contributor(), nil, func(r *domain.ItemRefs) *[]int { return &r.Commits }, i)
	}
	for i, is := range flat.Issues {
		if err := check("issue", i, is.Repository, is.Number > 0, is.Timestamp().IsZero()); err != nil {
			return nil, err
		}
		b.add(is.Repository, is.Author, is.Labels, func(r *domain.ItemRefs) *[]int { return &r.Issues }, i)
	}
	for i, p := range flat.PullRequests {
		if err := check("pull request", i, p.Repository, p.Number > 0, p.Timestamp().IsZero()); err != nil {
			return nil, err
		}
		b.add(p.Repository, p.Author, p.Labels, func(r *domain.ItemRefs) *[]int { return &r.PullRequests }, i)
	}
	for i, c := range flat.IssueComments {
		if err := check("issue comment", i, c.Repository, c.ID != 0, c.Timestamp().IsZero()); err != nil {
			return nil, err
		}
		b.add(c.Repository, c.Author, nil, func(r *domain.ItemRefs) *[]int { return &r.IssueComments }, i)
	}
	for i, rv := range flat.Reviews {
		if err := check("review", i, rv.Repository, rv.ID != 0, rv.Timestamp().IsZero()); err != nil {
			return nil, err
		}
		b.add(rv.Repository, rv.Author, nil, func(r *domain.ItemRefs) *[]int { return &r.Reviews }, i)
	}
	for i, c := range flat.ReviewComments {
		if err := check("review comment", i, c.Repository, c.ID != 0, c.Timestamp().IsZero()); err != nil {
			return nil, err
		}
		b.add(c.Repository, c.Author, nil, func(r *domain.ItemRefs) *[]int { return &r.ReviewComments }, i)
	}
	for i, rl := range flat.Releases {
		if err := check("release", i, rl.Repository, rl.ID != 0, rl.Timestamp().IsZero()); err != nil {
			return nil, err
		}
		b.add(rl.Repository, rl.Author, nil, func(r *domain.ItemRefs) *[]int { return &r.Releases }, i)
	}
	return b.idx, nil
}

func check(what string, pos int, repo string, hasID, zeroTime bool) error {
	switch {
	case repo == "":
		return invalidItem(what, pos, "repository")
	case !hasID:
		return invalidItem(what, pos, "identifier")
	case zeroTime:
		return invalidItem(what, pos, "timestamp")
	}
	return nil
}

func invalidItem(what string, pos int, field string) error {
	return apperr.MalformedResponse("collected items", fmt.Errorf("%s at position %d has no %s", what, pos, field))
}
