package index

import (
	"context"
	"fmt"
	"strings"

	"repolens/internal/llm"
	"repolens/internal/store"
)

const overviewPrompt = `You are a senior software architect analyzing a codebase. Based ONLY on the file summaries provided below, write a concise architectural overview in Markdown.

Rules:
- ONLY describe what you can directly observe in the provided summaries
- Do NOT guess or infer features that aren't shown
- Do NOT describe external tools or services, describe THIS project

Cover:
1. What the project does (one paragraph)
2. Major components and how they connect (bullet points)
3. Key data flows through the system

Keep it under 300 words. Do not include code snippets.
`

const (
	// maxOverviewFiles bounds the prompt for very large repositories.
	maxOverviewFiles = 300
	overviewTokens   = 600
)

// WithOverview makes every successful run finish by asking gen for an
// architectural overview, stored as the project's overview metadata.
func (idx *Indexer) WithOverview(gen llm.Generator) *Indexer {
	idx.overview = gen
	return idx
}

// overviewPromptFor lists one summary per file, from the first fragment of
// each file, in path order.
func overviewPromptFor(items []prepared) (string, int) {
	var b strings.Builder
	b.WriteString(overviewPrompt)
	b.WriteString("\n## Files\n\n")

	seen := make(map[string]bool)
	files := 0
	for _, it := range items {
		if seen[it.frag.SourceFile] || files == maxOverviewFiles {
			continue
		}
		seen[it.frag.SourceFile] = true
		files++
		fmt.Fprintf(&b, "### %s\n%s\n\n", it.frag.SourceFile, it.summary)
	}
	return b.String(), files
}

// writeOverview generates and stores the overview. Failures only cost the
// overview and are logged.
func (idx *Indexer) writeOverview(ctx context.Context, projectID string, items []prepared, onProgress ProgressFunc) {
	prompt, files := overviewPromptFor(items)
	if files == 0 {
		return
	}
	onProgress(PhaseOverview, 0, 1)
	text, err := idx.overview.Generate(ctx, llm.UserPrompt(prompt), llm.Options{MaxTokens: overviewTokens})
	if err != nil {
		idx.logger.Warn("overview generation failed", "project", projectID, "error", err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if err := idx.store.SetMeta(ctx, projectID, store.MetaOverview, text); err != nil {
		idx.logger.Warn("store overview", "project", projectID, "error", err)
		return
	}
	onProgress(PhaseOverview, 1, 1)
}
