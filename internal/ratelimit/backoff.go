package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-facts/internal/apperr"
	"go.uber.org/zap"
)

// Backoff is an exponential backoff policy with a capped delay and a bounded retry count.
type Backoff struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultBackoff is used when the configuration does not override it.
var DefaultBackoff = Backoff{
	BaseDelay:  time.Second,
	Multiplier: 2,
	MaxDelay:   time.Minute,
	MaxRetries: 5,
}

// Validate rejects policies whose delays would not grow or would be unbounded.
func (b Backoff) Validate() error {
	switch {
	case b.BaseDelay <= 0:
		return fmt.Errorf("backoff base delay must be positive, got %s", b.BaseDelay)
	case b.Multiplier <= 1:
		return fmt.Errorf("backoff multiplier must be greater than 1, got %g", b.Multiplier)
	case b.MaxDelay < b.BaseDelay:
		return fmt.Errorf("backoff max delay %s is below the base delay %s", b.MaxDelay, b.BaseDelay)
	case b.MaxRetries < 0:
		return fmt.Errorf("backoff max retries must not be negative, got %d", b.MaxRetries)
	}
	return nil
}

// Delay returns the wait before retry number attempt (0-based): BaseDelay·Multiplier^attempt, capped at MaxDelay.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.BaseDelay) * math.Pow(b.Multiplier, float64(attempt))
	if math.IsInf(d, 0) || math.IsNaN(d) || d >= float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(d)
}

// Class is how a failed request should be treated.
type Class int

const (
	NotRetryable Class = iota
	RateLimited
	TransientFailure
)

// Classify decides whether err is worth retrying. For rate-limit errors it also
// returns the reset time when known.
func Classify(err error) (Class, time.Time) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NotRetryable, time.Time{}
	}

	var limitErr *LimitError
	if errors.As(err, &limitErr) {
		return RateLimited, limitErr.ResetAt
	}
	var ghRate *github.RateLimitError
	if errors.As(err, &ghRate) {
		return RateLimited, ghRate.Rate.Reset.Time
	}
	var ghAbuse *github.AbuseRateLimitError
	if errors.As(err, &ghAbuse) {
		var reset time.Time
		if ghAbuse.RetryAfter != nil {
			reset = time.Now().Add(*ghAbuse.RetryAfter)
		}
		return RateLimited, reset
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusTooManyRequests:
			return RateLimited, time.Time{}
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return TransientFailure, time.Time{}
		}
		return NotRetryable, time.Time{}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransientFailure, time.Time{}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNRESET) {
		return TransientFailure, time.Time{}
	}

	// The GraphQL client only reports failures as text.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") {
		return RateLimited, time.Time{}
	}
	for _, pattern := range []string{
		"status code: 502", "status code: 503", "status code: 504",
		"connection reset", "connection refused", "broken pipe", "timeout",
	} {
		if strings.Contains(msg, pattern) {
			return TransientFailure, time.Time{}
		}
	}
	return NotRetryable, time.Time{}
}

// Retrier re-attempts rate-limited and transient requests with exponential backoff.
type Retrier struct {
	policy Backoff
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// NewRetrier creates a Retrier. The policy must be valid.
func NewRetrier(policy Backoff, logger *zap.Logger) (*Retrier, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{policy: policy, logger: logger, sleep: sleepContext, now: time.Now}, nil
}

// Policy returns the backoff policy in use.
func (r *Retrier) Policy() Backoff {
	return r.policy
}

// Do runs fn until it succeeds, fails permanently or the retry budget is spent.
// Exhaustion is reported as an apperr rate-limit or transient error with a recommended wait.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Debug("request succeeded after retry", zap.String("op", op), zap.Int("attempt", attempt+1))
			}
			return nil
		}

		class, resetAt := Classify(err)
		if class == NotRetryable {
			return err
		}

		delay := r.policy.Delay(attempt)
		if attempt >= r.policy.MaxRetries {
			r.logger.Warn("giving up after retries", zap.String("op", op), zap.Int("attempts", attempt+1), zap.Error(err))
			now := r.now()
			if class == RateLimited {
				if resetAt.IsZero() || resetAt.Before(now) {
					resetAt = now.Add(delay)
				}
				return apperr.RateLimited(resetAt, now, err)
			}
			return apperr.Transient(delay, err)
		}

		r.logger.Info("retrying request",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
