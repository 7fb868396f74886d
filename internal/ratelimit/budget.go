// Package ratelimit keeps every concurrent request within GitHub's rate-limit budgets.
// A single Budget is shared by all fetches of a run; the Transport consults and
// decrements it before each request and reconciles it from the response headers.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/naka-gawa/github-facts/internal/domain"
)

// LimitError reports that a pool is exhausted, either observed from a response
// or predicted locally from the shared budget.
type LimitError struct {
	Pool       domain.Pool
	StatusCode int
	ResetAt    time.Time
	RetryAfter time.Duration
	// Local is true when no request was sent because the budget was already empty.
	Local bool
}

func (e *LimitError) Error() string {
	if e.Local {
		return fmt.Sprintf("%s rate limit budget exhausted until %s", e.Pool, e.ResetAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s rate limit exceeded (status %d), resets at %s", e.Pool, e.StatusCode, e.ResetAt.Format(time.RFC3339))
}

type poolState struct {
	known bool
	quota domain.Quota
}

// Budget is the shared in-memory rate-limit counter, one entry per pool.
type Budget struct {
	mu    sync.Mutex
	pools map[domain.Pool]*poolState
	now   func() time.Time
}

// NewBudget returns an empty budget. Pools are unknown until observed or seeded.
func NewBudget() *Budget {
	return &Budget{
		pools: make(map[domain.Pool]*poolState),
		now:   time.Now,
	}
}

func (b *Budget) state(pool domain.Pool) *poolState {
	s, ok := b.pools[pool]
	if !ok {
		s = &poolState{}
		b.pools[pool] = s
	}
	return s
}

// Take consumes one request from pool. Unknown pools are always allowed.
// An exhausted pool whose reset lies in the future yields a local *LimitError.
func (b *Budget) Take(pool domain.Pool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state(pool)
	if !s.known {
		return nil
	}
	now := b.now()
	if !s.quota.ResetAt.IsZero() && !now.Before(s.quota.ResetAt) {
		// The window rolled over; the next response will tell us the new numbers.
		s.known = false
		return nil
	}
	if s.quota.Remaining <= 0 {
		return &LimitError{Pool: pool, ResetAt: s.quota.ResetAt, RetryAfter: s.quota.ResetAt.Sub(now), Local: true}
	}
	s.quota.Remaining--
	return nil
}

// Observe reconciles pool with a quota read from the API. A new reset time means a
// new window and is adopted as is; within the same window the lower remaining wins,
// so out-of-order responses from parallel requests cannot inflate the budget.
func (b *Budget) Observe(pool domain.Pool, q domain.Quota) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state(pool)
	if !s.known || !q.ResetAt.Equal(s.quota.ResetAt) {
		if s.known && q.ResetAt.Before(s.quota.ResetAt) {
			return
		}
		s.known = true
		s.quota = q
		return
	}
	if q.Remaining < s.quota.Remaining {
		s.quota.Remaining = q.Remaining
	}
	if q.Limit > 0 {
		s.quota.Limit = q.Limit
	}
}

// Quota returns the current view of pool and whether it is known.
func (b *Budget) Quota(pool domain.Pool) (domain.Quota, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state(pool)
	return s.quota, s.known
}

// PoolForRequest maps a request URL onto the rate-limit pool it is billed to.
// The /rate_limit endpoint is free and maps to no pool.
func PoolForRequest(req *http.Request) domain.Pool {
	path := req.URL.Path
	switch {
	case strings.HasSuffix(path, "/rate_limit"):
		return ""
	case strings.HasSuffix(path, "/graphql") || path == "/graphql":
		return domain.PoolGraphQL
	case strings.Contains(path, "/search/"):
		return domain.PoolSearch
	default:
		return domain.PoolCore
	}
}

// QuotaFromHeaders parses the X-RateLimit-* headers. ok is false when they are absent.
func QuotaFromHeaders(h http.Header) (q domain.Quota, pool domain.Pool, ok bool) {
	remaining := h.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return domain.Quota{}, "", false
	}
	rem, err := strconv.Atoi(remaining)
	if err != nil {
		return domain.Quota{}, "", false
	}
	limit, _ := strconv.Atoi(h.Get("X-RateLimit-Limit"))
	reset, _ := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	q = domain.Quota{Limit: limit, Remaining: rem}
	if reset > 0 {
		q.ResetAt = time.Unix(reset, 0).UTC()
	}
	pool = domain.Pool(h.Get("X-RateLimit-Resource"))
	return q, pool, true
}
