package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fatih/color"

	"repolens/internal/chunker"
	"repolens/internal/chunker/languages"
	"repolens/internal/config"
	"repolens/internal/embedder"
	"repolens/internal/fetcher"
	"repolens/internal/index"
	"repolens/internal/llm"
	"repolens/internal/rag"
	"repolens/internal/store"
	"repolens/internal/summarizer"
)

var (
	titleColor   = color.New(color.FgMagenta, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	dimColor     = color.New(color.Faint)
)

// services is the fully wired pipeline shared by every command.
type services struct {
	store        store.Store
	fetcher      *fetcher.Resolver
	indexer      *index.Indexer
	retriever    *rag.Retriever
	orchestrator *rag.Orchestrator
}

func newServices(ctx context.Context, c *config.Config) (*services, error) {
	st, err := store.Open(ctx, store.Options{
		Driver:      c.Store,
		SQLitePath:  c.DB,
		PostgresDSN: c.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg := chunker.NewRegistry()
	languages.RegisterAll(reg)
	ch := chunker.New(reg, c.MaxChunkSize)

	chat := llm.NewOllamaChat(c.Ollama, c.ChatModel)
	emb, err := embedder.NewCachedEmbedder(embedder.NewOllamaEmbedder(c.Ollama, c.Model), c.EmbedCacheSize)
	if err != nil {
		st.Close()
		return nil, err
	}

	res := fetcher.NewResolver(c.Branch)
	idx := index.New(res, ch, summarizer.New(chat, logger), emb, st, index.Config{
		Workers:        c.Workers,
		BatchSize:      c.BatchSize,
		EmbeddingModel: c.Model,
	}, logger).WithOverview(chat)
	ret := rag.NewRetriever(emb, st, logger)
	orch := rag.NewOrchestrator(ret, chat, logger).WithOptions(llm.Options{
		Temperature: c.Temperature,
		MaxTokens:   c.MaxAnswerTokens,
	})

	return &services{
		store:        st,
		fetcher:      res,
		indexer:      idx,
		retriever:    ret,
		orchestrator: orch,
	}, nil
}

func (s *services) Close() error {
	return s.store.Close()
}

var nonIDChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// projectIDFor derives a project ID from a repository reference:
// "github.com/Octo/Demo" becomes "octo-demo" and a local path its
// directory name.
func projectIDFor(ref string) string {
	if !fetcher.IsLocal(ref) {
		if owner, repo, err := fetcher.ParseGitHubRef(ref); err == nil {
			return sanitizeID(owner + "-" + repo)
		}
	}
	abs, err := filepath.Abs(ref)
	if err != nil {
		abs = ref
	}
	return sanitizeID(filepath.Base(abs))
}

func sanitizeID(s string) string {
	s = nonIDChars.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-.")
}

// resolveProject returns --project or, when it is empty, the ID derived
// from ref.
func resolveProject(ref string) (string, error) {
	if flagProject != "" {
		return flagProject, nil
	}
	if ref == "" {
		return "", fmt.Errorf("--project is required")
	}
	id := projectIDFor(ref)
	if id == "" {
		return "", fmt.Errorf("cannot derive a project ID from %q; pass --project", ref)
	}
	return id, nil
}

func credentials() fetcher.Credentials {
	return fetcher.Credentials{Token: cfg.GitHubToken}
}
