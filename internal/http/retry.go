package http

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/mrlokans/librarian/internal/circulation"
)

const (
	defaultConflictRetries = 3
	defaultConflictDelay   = 20 * time.Millisecond
	maxConflictDelay       = time.Second
)

// RetryPolicy bounds how often a write is replayed after losing a race
// with a concurrent transaction.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = defaultConflictRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultConflictDelay
	}
	return p
}

// delay doubles per attempt and adds up to 50% jitter.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > maxConflictDelay || d <= 0 {
		d = maxConflictDelay
	}
	return d + rand.N(d/2+1)
}

// retryConflicts runs fn until it succeeds, fails with a non-retryable
// error, or the attempts run out. The last error is returned.
func retryConflicts[T any](ctx context.Context, p RetryPolicy, fn func() (T, error)) (T, error) {
	p = p.withDefaults()
	var (
		result T
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = fn()
		if err == nil || !circulation.IsRetryable(err) || attempt+1 >= p.Attempts {
			return result, err
		}
		select {
		case <-ctx.Done():
			return result, err
		case <-time.After(p.delay(attempt)):
		}
	}
}
