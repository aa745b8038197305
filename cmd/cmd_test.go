package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repolens/internal/fetcher"
	"repolens/internal/index"
	"repolens/internal/rag"
	"repolens/internal/store"
)

func TestProjectIDFor(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "My Service")
	require.NoError(t, os.Mkdir(dir, 0o755))

	assert.Equal(t, "octo-demo", projectIDFor("github.com/Octo/Demo"))
	assert.Equal(t, "octo-demo", projectIDFor("https://github.com/octo/demo.git"))
	assert.Equal(t, "octo-demo", projectIDFor("octo/demo"))
	assert.Equal(t, "my-service", projectIDFor(dir))
}

func TestResolveProject(t *testing.T) {
	t.Cleanup(func() { flagProject = "" })

	_, err := resolveProject("")
	assert.Error(t, err)

	id, err := resolveProject("octo/demo")
	require.NoError(t, err)
	assert.Equal(t, "octo-demo", id)

	flagProject = "explicit"
	id, err = resolveProject("octo/demo")
	require.NoError(t, err)
	assert.Equal(t, "explicit", id)
}

func TestRelevant(t *testing.T) {
	root := "/repo"
	assert.True(t, relevant(root, fsnotify.Event{Name: "/repo/src/a.go", Op: fsnotify.Write}))
	assert.False(t, relevant(root, fsnotify.Event{Name: "/repo/node_modules/x/a.js", Op: fsnotify.Write}))
	assert.False(t, relevant(root, fsnotify.Event{Name: "/repo/.git/HEAD", Op: fsnotify.Write}))
	assert.False(t, relevant(root, fsnotify.Event{Name: "/repo/src/a.go", Op: fsnotify.Chmod}))
}

func TestDebounce_CoalescesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan struct{})
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		debounce(ctx, in, 50*time.Millisecond, func() { calls.Add(1) })
		close(done)
	}()

	for i := 0; i < 5; i++ {
		in <- struct{}{}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("debounce did not return after cancel")
	}
}

func TestWatchTree_SkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "api"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "lib"), 0o755))
	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, watchTree(w, root))

	assert.ElementsMatch(t, []string{root, filepath.Join(root, "src"), filepath.Join(root, "src", "api")}, w.WatchList())
}

// --- MCP handlers ---

type stubRetriever struct{ results []store.SearchResult }

func (s stubRetriever) Retrieve(context.Context, string, string) ([]store.SearchResult, error) {
	return s.results, nil
}

type stubStream struct {
	tokens []string
	err    error
}

func (s *stubStream) Recv() (string, error) {
	if len(s.tokens) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	t := s.tokens[0]
	s.tokens = s.tokens[1:]
	return t, nil
}

func (s *stubStream) Close() error { return nil }

type stubAnswerer struct{ answer *rag.Answer }

func (s stubAnswerer) Answer(context.Context, string, string) (*rag.Answer, error) {
	return s.answer, nil
}

type stubEstimator struct{ token string }

func (s *stubEstimator) EstimateCost(_ context.Context, _ string, creds fetcher.Credentials) (int, error) {
	s.token = creds.Token
	return 12, nil
}

type stubJobs struct{ req index.Request }

func (s *stubJobs) Submit(req index.Request) (string, error) {
	s.req = req
	return "job-1", nil
}

func (s *stubJobs) Status(id string) (index.Job, error) {
	if id != "job-1" {
		return index.Job{}, index.ErrJobNotFound
	}
	return index.Job{
		ID: id, ProjectID: "p1", RepoRef: "octo/demo", State: index.JobSucceeded,
		Result: &index.Result{SuccessCount: 9, ErrorCount: 1, Files: 3, Fragments: 10},
	}, nil
}

type stubProjects struct{ overview string }

func (stubProjects) ListFiles(context.Context, string) ([]store.FileStat, error) {
	return []store.FileStat{{FileName: "src/api/users.ts", Chunks: 2}, {FileName: "README.md", Chunks: 1}}, nil
}

func (s stubProjects) GetMeta(_ context.Context, _, key string) (string, error) {
	if key == store.MetaOverview {
		return s.overview, nil
	}
	return "", nil
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text, res.IsError
	case *mcp.TextContent:
		return c.Text, res.IsError
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return "", false
}

func testDeps() (mcpDeps, *stubEstimator, *stubJobs) {
	est := &stubEstimator{}
	jobs := &stubJobs{}
	return mcpDeps{
		retriever: stubRetriever{results: []store.SearchResult{
			{FileName: "src/api/users.ts", Summary: "User API", SourceCode: "export {}", StartLine: 0, EndLine: 4, ChunkType: "function", Similarity: 0.92},
		}},
		answerer: stubAnswerer{answer: &rag.Answer{
			Stream: &stubStream{tokens: []string{"Users are ", "loaded by the API."}},
			Cited:  []store.SearchResult{{FileName: "src/api/users.ts", StartLine: 0, EndLine: 4}},
		}},
		estimator: est,
		jobs:      jobs,
		projects:  stubProjects{overview: "A shop backend."},
		token:     "ghp_default",
	}, est, jobs
}

func TestMCP_Search(t *testing.T) {
	d, _, _ := testDeps()

	text, isErr := callTool(t, makeSearchHandler(d), map[string]any{"project": "p1", "query": "users"})

	assert.False(t, isErr)
	assert.Contains(t, text, "`src/api/users.ts`")
	assert.Contains(t, text, "**Lines:** 1-5")
	assert.Contains(t, text, "92.0%")

	_, isErr = callTool(t, makeSearchHandler(d), map[string]any{"query": "users"})
	assert.True(t, isErr)
}

func TestMCP_Ask(t *testing.T) {
	d, _, _ := testDeps()

	text, isErr := callTool(t, makeAskHandler(d), map[string]any{"project": "p1", "question": "How are users loaded?"})

	assert.False(t, isErr)
	assert.Contains(t, text, "Users are loaded by the API.")
	assert.Contains(t, text, "- `src/api/users.ts` lines 1-5")
}

func TestMCP_AskPartialAnswer(t *testing.T) {
	d, _, _ := testDeps()
	d.answerer = stubAnswerer{answer: &rag.Answer{Stream: &stubStream{
		tokens: []string{"Half"},
		err:    &rag.GenerationError{Err: errors.New("model unloaded"), Delivered: 1},
	}}}

	text, isErr := callTool(t, makeAskHandler(d), map[string]any{"project": "p1", "question": "q"})

	assert.False(t, isErr)
	assert.Contains(t, text, "Half")
	assert.Contains(t, text, "answer interrupted: model unloaded")
}

func TestMCP_EstimateAndIndex(t *testing.T) {
	d, est, jobs := testDeps()

	text, isErr := callTool(t, makeEstimateHandler(d), map[string]any{"repo": "octo/demo"})
	assert.False(t, isErr)
	assert.Contains(t, text, "12 fragments")
	assert.Equal(t, "ghp_default", est.token)

	text, isErr = callTool(t, makeIndexHandler(d), map[string]any{"project": "p1", "repo": "octo/demo", "replace": true})
	assert.False(t, isErr)
	assert.Contains(t, text, "job-1")
	assert.True(t, jobs.req.Replace)
	assert.Equal(t, "p1", jobs.req.ProjectID)

	text, isErr = callTool(t, makeStatusHandler(d), map[string]any{"job_id": "job-1"})
	assert.False(t, isErr)
	assert.Contains(t, text, "succeeded")
	assert.Contains(t, text, "Indexed 9 of 10 fragments from 3 files (1 failed)")

	_, isErr = callTool(t, makeStatusHandler(d), map[string]any{"job_id": "nope"})
	assert.True(t, isErr)
}

func TestMCP_ListFilesPrefix(t *testing.T) {
	d, _, _ := testDeps()

	text, isErr := callTool(t, makeListFilesHandler(d), map[string]any{"project": "p1", "prefix": "src/"})

	assert.False(t, isErr)
	assert.Contains(t, text, "src/api/users.ts (2 fragments)")
	assert.NotContains(t, text, "README.md")
}

func TestMCP_Overview(t *testing.T) {
	d, _, _ := testDeps()

	text, isErr := callTool(t, makeOverviewHandler(d), map[string]any{"project": "p1"})
	assert.False(t, isErr)
	assert.Equal(t, "A shop backend.", text)

	d.projects = stubProjects{}
	text, isErr = callTool(t, makeOverviewHandler(d), map[string]any{"project": "p1"})
	assert.False(t, isErr)
	assert.Contains(t, text, "No overview available yet")
}
