package ratelimit

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/naka-gawa/github-facts/internal/domain"
	"go.uber.org/zap"
)

// Transport charges every request against a shared Budget and reads the
// rate-limit headers of every response.
type Transport struct {
	Base   http.RoundTripper
	Budget *Budget
	Logger *zap.Logger
}

// NewTransport wraps base. A nil base means http.DefaultTransport.
func NewTransport(base http.RoundTripper, budget *Budget, logger *zap.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{Base: base, Budget: budget, Logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	pool := PoolForRequest(req)
	if pool != "" {
		if err := t.Budget.Take(pool); err != nil {
			t.Logger.Debug("request held back by local budget",
				zap.String("pool", string(pool)), zap.String("path", req.URL.Path))
			return nil, err
		}
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if q, observed, ok := QuotaFromHeaders(resp.Header); ok {
		if observed == "" {
			observed = pool
		}
		if observed != "" {
			t.Budget.Observe(observed, q)
		}
	}

	if limitErr := limitFromResponse(resp, pool); limitErr != nil {
		t.Logger.Warn("rate limited by GitHub",
			zap.String("pool", string(limitErr.Pool)),
			zap.Int("status", limitErr.StatusCode),
			zap.Time("reset_at", limitErr.ResetAt))
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, limitErr
	}
	return resp, nil
}

// limitFromResponse recognizes primary rate-limit responses: 429, or 403 with no
// remaining budget or an explicit Retry-After.
func limitFromResponse(resp *http.Response, pool domain.Pool) *LimitError {
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusForbidden {
		return nil
	}
	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
	q, observed, hasQuota := QuotaFromHeaders(resp.Header)
	if resp.StatusCode == http.StatusForbidden {
		exhausted := hasQuota && q.Remaining == 0
		if !exhausted && retryAfter == 0 {
			return nil
		}
	}
	if observed != "" {
		pool = observed
	}
	resetAt := q.ResetAt
	if retryAfter > 0 && resetAt.IsZero() {
		resetAt = time.Now().Add(retryAfter)
	}
	return &LimitError{
		Pool:       pool,
		StatusCode: resp.StatusCode,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
