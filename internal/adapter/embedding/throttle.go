package embedding

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"tabrag/internal/port"
)

// Throttled bounds every call to the wrapped embedder with a timeout and,
// when a rate is set, a token bucket shared by ingestion and queries.
type Throttled struct {
	inner   port.Embedder
	limiter *rate.Limiter
	timeout time.Duration
}

// NewThrottled wraps inner. requestsPerSecond <= 0 disables rate limiting.
func NewThrottled(inner port.Embedder, requestsPerSecond float64, timeout time.Duration) *Throttled {
	t := &Throttled{inner: inner, timeout: timeout}
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return t
}

func (t *Throttled) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return t.inner.Embed(ctx, texts)
}

func (t *Throttled) Dimension() int {
	return t.inner.Dimension()
}

func (t *Throttled) ModelName() string {
	return t.inner.ModelName()
}
