// Package embedder turns text into vectors through an embedding service.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrEmptyVector       = errors.New("embedding provider returned an empty vector")
	ErrDegenerateVector  = errors.New("embedding provider returned a degenerate vector")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrProviderFailed    = errors.New("embedding provider failed")
)

// Embedder maps text to a fixed-length vector. Failures are returned to
// the caller, which decides whether to skip the item or abort.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Validate rejects vectors that cannot be searched: empty ones, all-zero
// ones, ones holding NaN or Inf, and, when dim > 0, ones of another length.
func Validate(vec []float32, dim int) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dim, len(vec))
	}
	var norm float64
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrDegenerateVector
		}
		norm += f * f
	}
	if norm == 0 {
		return ErrDegenerateVector
	}
	return nil
}
