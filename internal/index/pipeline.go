package index

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"repolens/internal/chunker"
	"repolens/internal/fetcher"
	"repolens/internal/store"
)

// prepared is a fragment with its summary and embedding, ready to store.
type prepared struct {
	frag    chunker.Fragment
	summary string
	vec     []float32
}

func (idx *Indexer) chunkAll(files []fetcher.RawFile, onProgress ProgressFunc) []chunker.Fragment {
	var frags []chunker.Fragment
	for i, f := range files {
		frags = append(frags, idx.chunker.Chunk(f.Path, f.Content)...)
		if onProgress != nil {
			onProgress(PhaseChunk, i+1, len(files))
		}
	}
	return frags
}

// prepare summarizes and embeds every fragment with bounded concurrency.
// Fragments whose embedding fails are dropped and counted. The returned
// slice keeps fragment order.
func (idx *Indexer) prepare(ctx context.Context, frags []chunker.Fragment, onProgress ProgressFunc) ([]prepared, int) {
	slots := make([]*prepared, len(frags))
	var done, dropped atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(idx.config.Workers)
	for i, frag := range frags {
		g.Go(func() error {
			defer func() {
				onProgress(PhasePrepare, int(done.Add(1)), len(frags))
			}()
			if ctx.Err() != nil {
				dropped.Add(1)
				return nil
			}

			summary := idx.summarizer.Summarize(ctx, frag)
			vec, err := idx.embedder.Embed(ctx, summary)
			if err != nil {
				idx.logger.Warn("embedding failed, dropping fragment",
					"file", frag.SourceFile, "chunk", frag.ChunkIndex, "error", err)
				dropped.Add(1)
				return nil
			}
			slots[i] = &prepared{frag: frag, summary: summary, vec: vec}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]prepared, 0, len(frags))
	for _, p := range slots {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, int(dropped.Load())
}

// persist stores prepared fragments in batches. Items within a batch are
// written concurrently and independently: a failure is counted, the
// partially written chunk is removed, and the rest of the run continues.
func (idx *Indexer) persist(ctx context.Context, projectID string, items []prepared, onProgress ProgressFunc) (int, int) {
	var ok, failed atomic.Int64
	size := idx.config.BatchSize

	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))

		g := new(errgroup.Group)
		for _, it := range items[start:end] {
			g.Go(func() error {
				if err := idx.persistOne(ctx, projectID, it); err != nil {
					idx.logger.Warn("persist failed",
						"file", it.frag.SourceFile, "chunk", it.frag.ChunkIndex, "error", err)
					failed.Add(1)
					return nil
				}
				ok.Add(1)
				return nil
			})
		}
		_ = g.Wait()

		onProgress(PhasePersist, end, len(items))
		idx.logger.Info("batch persisted", "project", projectID, "processed", end, "total", len(items))
	}
	return int(ok.Load()), int(failed.Load())
}

func (idx *Indexer) persistOne(ctx context.Context, projectID string, it prepared) error {
	id, err := idx.store.InsertChunk(ctx, store.Chunk{
		ProjectID:   projectID,
		FileName:    it.frag.SourceFile,
		SourceCode:  it.frag.Content,
		Summary:     it.summary,
		ChunkIndex:  it.frag.ChunkIndex,
		TotalChunks: it.frag.TotalChunks,
		StartLine:   it.frag.StartLine,
		EndLine:     it.frag.EndLine,
		ChunkType:   string(it.frag.ChunkType),
	})
	if err != nil {
		return err
	}
	if err := idx.store.SetVector(ctx, id, it.vec); err != nil {
		// A chunk without a vector can never be retrieved.
		if delErr := idx.store.DeleteChunk(context.WithoutCancel(ctx), id); delErr != nil {
			idx.logger.Warn("remove chunk without vector", "id", id, "error", delErr)
		}
		return err
	}
	return nil
}
