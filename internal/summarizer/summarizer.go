// Package summarizer describes code fragments in plain language so they
// can be embedded and searched by meaning.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"repolens/internal/chunker"
	"repolens/internal/llm"
)

// maxInputChars caps the code sent to the model.
const maxInputChars = 10000

const promptTemplate = `You are an intelligent senior software engineer who specializes in onboarding junior software engineers onto projects.
You are onboarding a junior software engineer and explaining to them the purpose of the %s file.
Here is the code:
---
%s
---
Please provide a summary of the code above in no more than 100 words.`

// Summarizer produces short summaries through a Generator. It never fails:
// when generation does not succeed a deterministic fallback is returned.
type Summarizer struct {
	gen    llm.Generator
	opts   llm.Options
	logger *slog.Logger
}

// New creates a summarizer. A nil logger discards log output.
func New(gen llm.Generator, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Summarizer{
		gen:    gen,
		opts:   llm.Options{MaxTokens: 256},
		logger: logger,
	}
}

// Summarize returns a summary of the fragment, prefixed with its position
// when the file was split.
func (s *Summarizer) Summarize(ctx context.Context, frag chunker.Fragment) string {
	prefix := chunkPrefix(frag)

	out, err := s.gen.Generate(ctx, llm.UserPrompt(Prompt(frag)), s.opts)
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		if err != nil {
			s.logger.Warn("summarize failed, using fallback",
				"file", frag.SourceFile, "chunk", frag.ChunkIndex, "error", err)
		}
		return prefix + Fallback(frag.SourceFile)
	}
	return prefix + out
}

// Prompt builds the summarization prompt for a fragment.
func Prompt(frag chunker.Fragment) string {
	code := frag.Content
	if r := []rune(code); len(r) > maxInputChars {
		code = string(r[:maxInputChars])
	}
	return fmt.Sprintf(promptTemplate, frag.SourceFile, code)
}

// Fallback is the summary used when the model gives none.
func Fallback(path string) string {
	return "Code section from " + path
}

func chunkPrefix(frag chunker.Fragment) string {
	if frag.TotalChunks <= 1 {
		return ""
	}
	return fmt.Sprintf("This is chunk %d of %d from %s. ", frag.ChunkIndex+1, frag.TotalChunks, frag.SourceFile)
}
