package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	coreerrors "github.com/lueurxax/telegram-event-radar/internal/core/errors"
	"github.com/lueurxax/telegram-event-radar/internal/platform/observability"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// ResilientClient wraps a provider with a circuit breaker and maps failures
// to ErrEmbeddingUnavailable so callers can degrade without partial writes.
type ResilientClient struct {
	provider Client
	name     string
	model    string
	breaker  *CircuitBreaker
}

var _ Client = (*ResilientClient)(nil)

// NewResilientClient wraps the given provider. The name and model are used
// as metric labels only.
func NewResilientClient(provider Client, name, model string, cfg CircuitBreakerConfig, logger *zerolog.Logger) *ResilientClient {
	return &ResilientClient{
		provider: provider,
		name:     name,
		model:    model,
		breaker:  NewCircuitBreaker(cfg, logger),
	}
}

// Dimensions returns the underlying provider's dimensionality.
func (c *ResilientClient) Dimensions() int {
	return c.provider.Dimensions()
}

// GetEmbedding delegates to the provider, tracking failures in the breaker.
func (c *ResilientClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := c.breaker.CheckCircuit(); err != nil {
		observability.CircuitBreakerState.Set(1)
		return nil, fmt.Errorf("%w: %w", coreerrors.ErrEmbeddingUnavailable, err)
	}

	start := time.Now()

	vec, err := c.provider.GetEmbedding(ctx, text)

	observability.EmbeddingLatency.WithLabelValues(c.name, c.model).Observe(time.Since(start).Seconds())

	if err != nil {
		c.breaker.RecordFailure()
		observability.EmbeddingRequests.WithLabelValues(c.name, c.model, statusError).Inc()

		if c.breaker.IsOpen() {
			observability.CircuitBreakerState.Set(1)
		}

		return nil, fmt.Errorf("%w: %w", coreerrors.ErrEmbeddingUnavailable, err)
	}

	c.breaker.RecordSuccess()
	observability.EmbeddingRequests.WithLabelValues(c.name, c.model, statusSuccess).Inc()
	observability.CircuitBreakerState.Set(0)

	return vec, nil
}
