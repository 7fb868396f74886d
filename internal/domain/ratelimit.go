package domain

import "time"

// Pool is one of GitHub's independently budgeted rate-limit resources.
type Pool string

const (
	PoolCore    Pool = "core"
	PoolGraphQL Pool = "graphql"
	PoolSearch  Pool = "search"
)

// Quota is the remaining/total budget of one pool.
type Quota struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RateLimitUsage is a point-in-time snapshot of the REST and GraphQL budgets.
type RateLimitUsage struct {
	REST       Quota     `json:"rest"`
	GraphQL    Quota     `json:"graphql"`
	ObservedAt time.Time `json:"observed_at"`
}
