// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Collaborator availability errors.
var (
	// ErrEmbeddingUnavailable indicates the embedding provider failed; no
	// partial cluster writes happen on this path.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrIndexUnavailable indicates the vector similarity index failed.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// Cluster store errors.
var (
	// ErrClusterNotFound indicates a resolved candidate cluster is missing from
	// the store, typically deleted by a concurrent maintenance run.
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrMessageNotFound indicates a message could not be found.
	ErrMessageNotFound = errors.New("message not found")

	// ErrMembershipExists indicates a message is already assigned to a cluster.
	ErrMembershipExists = errors.New("membership already exists")
)

// Computation errors.
var (
	// ErrInsufficientData indicates fewer messages or windows than the
	// required minimum; callers treat it as an explicit empty result.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNoClustersFound indicates a clustering strategy produced no
	// non-noise clusters; the fallback chain handles it.
	ErrNoClustersFound = errors.New("no clusters found")
)

// Maintenance errors.
var (
	// ErrMaintenanceBusy indicates another maintenance operation holds the
	// advisory lock.
	ErrMaintenanceBusy = errors.New("maintenance operation already running")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
