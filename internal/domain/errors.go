package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrEmptyDocument signals that a document produced no usable text or chunks.
	ErrEmptyDocument = errors.New("empty document")
	// ErrDimensionMismatch signals a vector with the wrong dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrQuotaExceeded signals an exhausted embedding quota.
	ErrQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrRateLimited signals a rate limit hit at the provider.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrIndexClosed signals an operation on a closed index.
	ErrIndexClosed = errors.New("index closed")
)

// QuotaError wraps ErrQuotaExceeded with the tokens left in each window,
// so callers can surface "try again later" with concrete numbers.
type QuotaError struct {
	RemainingDaily   int64
	RemainingMonthly int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: %d daily / %d monthly tokens remaining",
		ErrQuotaExceeded.Error(), e.RemainingDaily, e.RemainingMonthly)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// NewQuotaError creates a quota error carrying remaining-budget metadata.
func NewQuotaError(daily, monthly int64) error {
	return &QuotaError{RemainingDaily: daily, RemainingMonthly: monthly}
}
