package source

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled caps the request rate against an upstream Source.
type Throttled struct {
	src     Source
	limiter *rate.Limiter
}

// Throttle wraps src so that List and Fetch together issue at most rps
// requests per second. A non-positive rps returns src unchanged.
func Throttle(src Source, rps float64, burst int) Source {
	if rps <= 0 {
		return src
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{src: src, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// List waits for a token, then lists.
func (t *Throttled) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.src.List(ctx, prefix)
}

// Fetch waits for a token, then fetches.
func (t *Throttled) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.src.Fetch(ctx, key)
}
