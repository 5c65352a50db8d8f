package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrRateLimited indicates the external backend's rate limit was hit.
	ErrRateLimited = errors.New("rate limited")

	// Storage errors (spec §7).

	// ErrStorageFatal indicates the store could not be opened or has a
	// corrupt schema. Callers must refuse further operations.
	ErrStorageFatal = errors.New("storage: fatal error")

	// ErrDimensionMismatch indicates a query or insert vector's length
	// does not match the workspace's registered embedding_dimension. This
	// is a dedicated guardrail error distinct from a generic bug: callers
	// should present it to the user as a misconfiguration.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// Reranker errors (spec §7, §4.10).

	// ErrRerankBackendUnavailable indicates no reranker backend is
	// configured, or the configured backend returned an error. Callers
	// fall back to the pre-rerank result list; this error is informational.
	ErrRerankBackendUnavailable = errors.New("rerank backend unavailable")
)
