package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/yorby/backend/internal/circuitbreaker"
)

// breakerOracle wraps an Oracle with a circuit breaker so a degraded model
// API fails fast instead of holding requests open.
type breakerOracle struct {
	inner   Oracle
	breaker *circuitbreaker.Breaker
}

// WithBreaker guards an Oracle with a circuit breaker.
func WithBreaker(inner Oracle, logger *slog.Logger) Oracle {
	return &breakerOracle{
		inner: inner,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "gemini",
			FailureThreshold: 5,
			Timeout:          30 * time.Second,
		}, logger),
	}
}

func (b *breakerOracle) GenerateContent(ctx context.Context, prompt string) (string, error) {
	var out string
	err := b.breaker.Execute(func() error {
		var err error
		out, err = b.inner.GenerateContent(ctx, prompt)
		return err
	})
	return out, err
}
