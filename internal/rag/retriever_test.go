package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repolens/internal/store"
)

type fakeEmbedder struct{ err error }

func (e fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0}, nil
}

type fakeSearcher struct {
	results []store.SearchResult
	err     error

	gotProject   string
	gotThreshold float64
	gotLimit     int
}

func (s *fakeSearcher) SimilaritySearch(_ context.Context, projectID string, _ []float32, threshold float64, limit int) ([]store.SearchResult, error) {
	s.gotProject, s.gotThreshold, s.gotLimit = projectID, threshold, limit
	if len(s.results) > limit {
		return s.results[:limit], s.err
	}
	return s.results, s.err
}

func TestRetrieve_QueriesStore(t *testing.T) {
	s := &fakeSearcher{results: []store.SearchResult{result("src/auth/login.ts", 0.6)}}
	r := NewRetriever(fakeEmbedder{}, s, nil)

	out, err := r.Retrieve(context.Background(), "how does auth work", "p1")
	require.NoError(t, err)

	assert.Equal(t, "p1", s.gotProject)
	assert.Equal(t, 0.3, s.gotThreshold)
	assert.Equal(t, 30, s.gotLimit)
	require.Len(t, out, 1)
	assert.Greater(t, out[0].Similarity, out[0].RawSimilarity)
}

func TestRetrieve_RawThresholdIsStrict(t *testing.T) {
	s := &fakeSearcher{results: []store.SearchResult{
		result("src/auth/a.ts", 0.31),
		result("src/auth/b.ts", 0.3),
		result("src/auth/c.ts", 0.1),
		result("src/auth/d.ts", 1.2),
	}}
	r := NewRetriever(fakeEmbedder{}, s, nil)

	out, err := r.Retrieve(context.Background(), "auth", "p1")
	require.NoError(t, err)

	require.Len(t, out, 2)
	for _, c := range out {
		assert.Greater(t, c.RawSimilarity, 0.3)
		assert.LessOrEqual(t, c.RawSimilarity, 1.0)
		assert.LessOrEqual(t, c.Similarity, 1.0)
	}
}

func TestRetrieve_FortyFilesFiveDirectories(t *testing.T) {
	var results []store.SearchResult
	for i := 0; i < 40; i++ {
		results = append(results, result(fmt.Sprintf("pkg%d/file%d.go", i%5, i), 0.9-float64(i)*0.01))
	}
	s := &fakeSearcher{results: results}
	r := NewRetriever(fakeEmbedder{}, s, nil).WithConfig(RetrieverConfig{
		Threshold: 0.3, Candidates: 40, MaxResults: 15, PerDirectory: 3,
	})

	out, err := r.Retrieve(context.Background(), "what does this project do", "p1")
	require.NoError(t, err)

	assert.LessOrEqual(t, len(out), 15)
	counts := map[string]int{}
	for _, c := range out {
		counts[Directory(c.FileName)]++
	}
	for _, n := range counts {
		assert.LessOrEqual(t, n, 3)
	}
}

func TestRetrieve_EmptyIsNotAnError(t *testing.T) {
	r := NewRetriever(fakeEmbedder{}, &fakeSearcher{}, nil)

	out, err := r.Retrieve(context.Background(), "anything at all", "p1")

	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRetrieve_Errors(t *testing.T) {
	_, err := NewRetriever(fakeEmbedder{}, &fakeSearcher{}, nil).Retrieve(context.Background(), "  ", "p1")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	boom := errors.New("embedding service down")
	_, err = NewRetriever(fakeEmbedder{err: boom}, &fakeSearcher{}, nil).Retrieve(context.Background(), "q?", "p1")
	assert.ErrorIs(t, err, boom)

	_, err = NewRetriever(fakeEmbedder{}, &fakeSearcher{err: boom}, nil).Retrieve(context.Background(), "q?", "p1")
	assert.ErrorIs(t, err, boom)
}
