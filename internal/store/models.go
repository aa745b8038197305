package store

import "time"

// Chunk is a persisted fragment of a project's source file. Chunks are
// created during indexing and never mutated afterwards.
type Chunk struct {
	ID          string
	ProjectID   string
	FileName    string
	SourceCode  string
	Summary     string
	ChunkIndex  int
	TotalChunks int
	StartLine   int
	EndLine     int
	ChunkType   string
	CreatedAt   time.Time
}

// SearchResult is a chunk matched by a similarity query. Similarity starts
// equal to RawSimilarity and may be raised by reranking.
type SearchResult struct {
	ID            string
	FileName      string
	SourceCode    string
	Summary       string
	Similarity    float64
	RawSimilarity float64
	StartLine     int
	EndLine       int
	ChunkType     string
}

// FileStat is the number of chunks stored for one file.
type FileStat struct {
	FileName string
	Chunks   int
}
