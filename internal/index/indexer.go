// Package index turns a repository into searchable chunks: fetch, chunk,
// summarize, embed and persist.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"repolens/internal/chunker"
	"repolens/internal/embedder"
	"repolens/internal/fetcher"
	"repolens/internal/llm"
	"repolens/internal/store"
)

// DefaultBatchSize is the number of chunks persisted per batch.
const DefaultBatchSize = 10

// Progress phases reported to a ProgressFunc.
const (
	PhaseFetch    = "fetching"
	PhaseChunk    = "chunking"
	PhasePrepare  = "summarizing"
	PhasePersist  = "persisting"
	PhaseOverview = "overview"
)

// ProgressFunc is called as indexing advances through its phases.
type ProgressFunc func(phase string, processed, total int)

// Summarizer describes a fragment. It must not fail; a fallback summary
// is returned instead.
type Summarizer interface {
	Summarize(ctx context.Context, frag chunker.Fragment) string
}

// Config holds the indexer configuration.
type Config struct {
	// Workers bounds concurrent summarize/embed calls.
	Workers   int
	BatchSize int
	// EmbeddingModel is recorded per project. Indexing a project with a
	// different model replaces its chunks.
	EmbeddingModel string
}

// Request describes one indexing run.
type Request struct {
	ProjectID   string
	RepoRef     string
	Credentials fetcher.Credentials
	// Replace deletes the project's existing chunks once the repository
	// has been fetched. Without it a run appends.
	Replace bool
}

// Result tallies an indexing run.
type Result struct {
	SuccessCount int
	ErrorCount   int
	Files        int
	Fragments    int
	Replaced     bool
	Duration     time.Duration
}

// Indexer orchestrates fetcher, chunker, summarizer, embedder and store.
type Indexer struct {
	fetcher    fetcher.Fetcher
	chunker    *chunker.Chunker
	summarizer Summarizer
	embedder   embedder.Embedder
	store      store.Store
	config     Config
	overview   llm.Generator
	logger     *slog.Logger
}

// New creates an Indexer. A nil logger discards log output.
func New(f fetcher.Fetcher, c *chunker.Chunker, sum Summarizer, emb embedder.Embedder, s store.Store, cfg Config, logger *slog.Logger) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Indexer{
		fetcher:    f,
		chunker:    c,
		summarizer: sum,
		embedder:   emb,
		store:      s,
		config:     cfg,
		logger:     logger,
	}
}

// Index runs the whole pipeline for one repository. A fetch failure aborts
// the run; failures of single fragments are logged and counted.
func (idx *Indexer) Index(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error) {
	start := time.Now()
	if onProgress == nil {
		onProgress = func(string, int, int) {}
	}
	log := idx.logger.With("project", req.ProjectID, "repo", req.RepoRef)

	onProgress(PhaseFetch, 0, 1)
	files, err := idx.fetcher.Fetch(ctx, req.RepoRef, req.Credentials)
	if err != nil {
		log.Error("fetch failed", "error", err)
		return nil, fmt.Errorf("fetch %s: %w", req.RepoRef, err)
	}
	onProgress(PhaseFetch, 1, 1)

	frags := idx.chunkAll(files, onProgress)
	res := &Result{Files: len(files), Fragments: len(frags)}
	log.Info("repository chunked", "files", len(files), "fragments", len(frags))

	if err := idx.store.EnsureProject(ctx, req.ProjectID); err != nil {
		return nil, fmt.Errorf("ensure project: %w", err)
	}
	replace, err := idx.mustReplace(ctx, req)
	if err != nil {
		return nil, err
	}

	prepared, dropped := idx.prepare(ctx, frags, onProgress)
	res.ErrorCount += dropped
	if err := ctx.Err(); err != nil {
		res.Duration = time.Since(start)
		return res, err
	}

	if replace && len(prepared) == 0 && len(frags) > 0 {
		// Nothing could be embedded, so clearing would leave the project
		// without a searchable index.
		log.Warn("no fragments prepared, keeping previous chunks", "dropped", dropped)
		res.Duration = time.Since(start)
		return res, nil
	}

	if replace {
		n, err := idx.store.DeleteProjectChunks(ctx, req.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("clear project chunks: %w", err)
		}
		res.Replaced = true
		log.Info("cleared previous chunks", "deleted", n)
	}

	ok, failed := idx.persist(ctx, req.ProjectID, prepared, onProgress)
	res.SuccessCount += ok
	res.ErrorCount += failed

	if idx.overview != nil && ok > 0 && ctx.Err() == nil {
		idx.writeOverview(ctx, req.ProjectID, prepared, onProgress)
	}

	if idx.config.EmbeddingModel != "" {
		if err := idx.store.SetMeta(ctx, req.ProjectID, store.MetaEmbeddingModel, idx.config.EmbeddingModel); err != nil {
			log.Warn("record embedding model", "error", err)
		}
	}

	res.Duration = time.Since(start)
	log.Info("indexing finished",
		"success", res.SuccessCount, "errors", res.ErrorCount, "duration", res.Duration.Round(time.Millisecond))
	return res, ctx.Err()
}

// mustReplace reports whether the project's chunks have to be cleared,
// either on request or because they were embedded with another model.
func (idx *Indexer) mustReplace(ctx context.Context, req Request) (bool, error) {
	if req.Replace || idx.config.EmbeddingModel == "" {
		return req.Replace, nil
	}
	last, err := idx.store.GetMeta(ctx, req.ProjectID, store.MetaEmbeddingModel)
	if err != nil {
		return false, fmt.Errorf("get meta: %w", err)
	}
	if last != "" && last != idx.config.EmbeddingModel {
		idx.logger.Warn("embedding model changed, replacing project chunks",
			"project", req.ProjectID, "from", last, "to", idx.config.EmbeddingModel)
		return true, nil
	}
	return false, nil
}

// EstimateCost fetches and chunks a repository without summarizing or
// embedding anything. The cost is one unit per fragment.
func (idx *Indexer) EstimateCost(ctx context.Context, ref string, creds fetcher.Credentials) (int, error) {
	files, err := idx.fetcher.Fetch(ctx, ref, creds)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", ref, err)
	}
	return len(idx.chunkAll(files, nil)), nil
}
