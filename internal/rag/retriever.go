// Package rag retrieves the fragments relevant to a question and streams
// an answer grounded in them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"repolens/internal/embedder"
	"repolens/internal/store"
)

var ErrEmptyQuestion = errors.New("rag: empty question")

// Retrieval defaults.
const (
	DefaultThreshold    = 0.3
	DefaultCandidates   = 30
	DefaultMaxResults   = 15
	DefaultPerDirectory = 3
)

// Searcher is the part of the store the retriever needs.
type Searcher interface {
	SimilaritySearch(ctx context.Context, projectID string, vec []float32, threshold float64, limit int) ([]store.SearchResult, error)
}

// RetrieverConfig tunes candidate search and selection.
type RetrieverConfig struct {
	Threshold    float64
	Candidates   int
	MaxResults   int
	PerDirectory int
}

// DefaultRetrieverConfig returns the standard retrieval settings.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		Threshold:    DefaultThreshold,
		Candidates:   DefaultCandidates,
		MaxResults:   DefaultMaxResults,
		PerDirectory: DefaultPerDirectory,
	}
}

// Retriever finds the fragments of a project most relevant to a question.
type Retriever struct {
	embedder embedder.Embedder
	store    Searcher
	config   RetrieverConfig
	logger   *slog.Logger
}

// NewRetriever creates a retriever with the default configuration.
func NewRetriever(emb embedder.Embedder, s Searcher, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Retriever{embedder: emb, store: s, config: DefaultRetrieverConfig(), logger: logger}
}

// WithConfig replaces the retrieval settings.
func (r *Retriever) WithConfig(cfg RetrieverConfig) *Retriever {
	r.config = cfg
	return r
}

// Retrieve embeds the question, searches the project for candidates above
// the similarity threshold, reranks them by keyword and file kind, and
// keeps a directory-diverse subset. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, question, projectID string) ([]store.SearchResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	candidates, err := r.store.SimilaritySearch(ctx, projectID, vec, r.config.Threshold, r.config.Candidates)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	gated := make([]store.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		c.RawSimilarity = max(-1, min(1, c.RawSimilarity))
		if c.RawSimilarity <= r.config.Threshold {
			continue
		}
		gated = append(gated, c)
	}

	selected := SelectDiverse(Boost(gated, question), r.config.MaxResults, r.config.PerDirectory)
	r.logger.Debug("retrieved context",
		"project", projectID, "candidates", len(candidates), "selected", len(selected))
	return selected, nil
}
