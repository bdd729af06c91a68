package infra

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff yields exponentially growing delays with +/-20% jitter, used by the
// daemons to reconnect to the store and the broker
type Backoff struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	multiplier float64
	current    time.Duration
	attempts   int
	mu         sync.Mutex
}

func NewBackoff(minDelay, maxDelay time.Duration, mult float64) *Backoff {
	return &Backoff{
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		multiplier: mult,
		current:    minDelay,
	}
}

// Next returns the delay for the upcoming attempt and advances the curve
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	jitterFactor := rand.Float64()*0.4 - 0.2
	jitter := time.Duration(jitterFactor * float64(b.current))
	wait := max(b.current+jitter, b.minDelay)

	b.current = min(time.Duration(float64(b.current)*b.multiplier), b.maxDelay)

	return wait
}

// Wait sleeps for Next() or until ctx is done
func (b *Backoff) Wait(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retry calls op until it succeeds or ctx is done, waiting between attempts.
// onErr, when set, sees every failure before the wait.
func Retry[T any](ctx context.Context, b *Backoff, op func(context.Context) (T, error), onErr func(error, int)) (T, error) {
	for {
		v, err := op(ctx)
		if err == nil {
			b.Reset()
			return v, nil
		}
		if onErr != nil {
			onErr(err, b.Attempts()+1)
		}
		if werr := b.Wait(ctx); werr != nil {
			var zero T
			return zero, werr
		}
	}
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.minDelay
	b.attempts = 0
}

func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
