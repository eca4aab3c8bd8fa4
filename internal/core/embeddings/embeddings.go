// Package embeddings provides text embedding generation for the clustering core.
//
// A single configured provider (OpenAI by default) sits behind the Client
// interface, wrapped with a rate limiter and a circuit breaker. A
// deterministic mock provider backs tests.
package embeddings

import (
	"context"
	"time"
)

// DefaultDimensions matches the message_embeddings schema.
const DefaultDimensions = 1536

// Client defines the interface for embedding operations.
type Client interface {
	// GetEmbedding generates an embedding for the given text.
	GetEmbedding(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the output dimensionality of this client.
	Dimensions() int
}

// CircuitBreakerConfig defines circuit breaker settings.
type CircuitBreakerConfig struct {
	Threshold  int           // Number of failures before opening circuit
	ResetAfter time.Duration // Time before attempting recovery
}

// DefaultCircuitBreakerConfig returns sensible defaults for circuit breaker.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: time.Minute,
	}
}
