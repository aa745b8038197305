// Package store persists indexed chunks and their embeddings and answers
// project-scoped vector similarity queries.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrUnknownDriver = errors.New("store: unknown driver")
)

// MetaEmbeddingModel records which embedding model produced a project's vectors.
const MetaEmbeddingModel = "embedding_model"

// MetaOverview holds the generated architectural overview of a project.
const MetaOverview = "overview"

// Store provides persistence for projects, chunks, and embeddings. Every
// call is independent; there is no cross-call transaction.
type Store interface {
	// EnsureProject creates the project if it does not exist.
	EnsureProject(ctx context.Context, projectID string) error
	// InsertChunk stores a chunk and returns its ID. An empty ID is
	// replaced with a new UUID.
	InsertChunk(ctx context.Context, c Chunk) (string, error)
	// SetVector stores the embedding of a chunk.
	SetVector(ctx context.Context, chunkID string, vec []float32) error
	// DeleteChunk removes a chunk and its embedding.
	DeleteChunk(ctx context.Context, chunkID string) error
	// SimilaritySearch returns up to limit chunks of the project whose
	// cosine similarity to vec exceeds threshold, most similar first.
	// Chunks whose vectors have a different dimension are ignored.
	SimilaritySearch(ctx context.Context, projectID string, vec []float32, threshold float64, limit int) ([]SearchResult, error)
	// DeleteProject removes a project with all of its chunks and metadata.
	DeleteProject(ctx context.Context, projectID string) error
	// DeleteProjectChunks removes every chunk of a project and returns how
	// many were deleted.
	DeleteProjectChunks(ctx context.Context, projectID string) (int64, error)
	CountChunks(ctx context.Context, projectID string) (int, error)
	ListFiles(ctx context.Context, projectID string) ([]FileStat, error)
	// GetMeta returns a project metadata value, or "" if not set.
	GetMeta(ctx context.Context, projectID, key string) (string, error)
	SetMeta(ctx context.Context, projectID, key, value string) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open connects to the backend named by opts.Driver and initializes its schema.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "sqlite":
		return OpenSQLite(opts.SQLitePath)
	case "postgres":
		return OpenPostgres(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}
