package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil.
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrAlreadyExists", ErrAlreadyExists},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrNotImplemented", ErrNotImplemented},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrStorageFatal", ErrStorageFatal},
		{"ErrDimensionMismatch", ErrDimensionMismatch},
		{"ErrRerankBackendUnavailable", ErrRerankBackendUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrNotFound(t *testing.T) {
	assert.Equal(t, "not found", ErrNotFound.Error())
	assert.True(t, errors.Is(ErrNotFound, ErrNotFound))
	assert.False(t, errors.Is(ErrNotFound, ErrAlreadyExists))
}

func TestErrDimensionMismatch(t *testing.T) {
	assert.Contains(t, ErrDimensionMismatch.Error(), "dimension")
	assert.False(t, errors.Is(ErrDimensionMismatch, ErrStorageFatal))
}

// TestErrors_Uniqueness tests that all errors are distinct.
func TestErrors_Uniqueness(t *testing.T) {
	allErrors := []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrInvalidInput,
		ErrNotImplemented,
		ErrRateLimited,
		ErrStorageFatal,
		ErrDimensionMismatch,
		ErrRerankBackendUnavailable,
	}

	for i, err1 := range allErrors {
		for j, err2 := range allErrors {
			if i != j {
				assert.False(t, errors.Is(err1, err2),
					"Error %v should not match error %v", err1, err2)
			}
		}
	}
}

// TestErrors_WithWrapping tests error wrapping behavior.
func TestErrors_WithWrapping(t *testing.T) {
	wrappedErr := errors.Join(ErrNotFound, errors.New("additional context"))

	assert.True(t, errors.Is(wrappedErr, ErrNotFound))
	assert.Contains(t, wrappedErr.Error(), "not found")
}

// TestErrors_StorageTaxonomy documents the spec §7 distinction between
// storage-fatal (surfaced) and storage-recoverable (logged, degrades
// silently) errors: only ErrStorageFatal and ErrDimensionMismatch are
// meant to propagate past the store's API boundary.
func TestErrors_StorageTaxonomy(t *testing.T) {
	surfaced := []error{ErrStorageFatal, ErrDimensionMismatch}
	for _, err := range surfaced {
		assert.NotNil(t, err)
	}
}
