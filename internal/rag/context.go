package rag

import (
	"fmt"
	"strings"

	"repolens/internal/store"
)

// maxCodeChars bounds the source shown per fragment in the context.
const maxCodeChars = 3000

const truncatedMarker = "\n... [truncated]"

const noContextNotice = "No relevant code was found in the indexed repository for this question. " +
	"Say that the available context is insufficient and suggest where the answer might be found.\n"

// BuildContext renders the selected fragments as a Markdown document
// grouped by directory, directories in order of first appearance.
func BuildContext(results []store.SearchResult) string {
	var b strings.Builder
	b.WriteString("# CODEBASE CONTEXT\n\n")
	if len(results) == 0 {
		b.WriteString(noContextNotice)
		return b.String()
	}

	var dirs []string
	groups := map[string][]store.SearchResult{}
	for _, r := range results {
		dir := Directory(r.FileName)
		if _, ok := groups[dir]; !ok {
			dirs = append(dirs, dir)
		}
		groups[dir] = append(groups[dir], r)
	}

	for _, dir := range dirs {
		fmt.Fprintf(&b, "## Directory: %s\n\n", dir)
		for _, r := range groups[dir] {
			fmt.Fprintf(&b, "### File: %s\n", r.FileName)
			fmt.Fprintf(&b, "**Summary:** %s\n", r.Summary)
			fmt.Fprintf(&b, "**Relevance:** %.1f%%\n\n", r.Similarity*100)
			b.WriteString("```\n")
			b.WriteString(truncateCode(r.SourceCode))
			b.WriteString("\n```\n\n")
		}
	}
	return b.String()
}

func truncateCode(code string) string {
	r := []rune(code)
	if len(r) <= maxCodeChars {
		return code
	}
	return string(r[:maxCodeChars]) + truncatedMarker
}

// BuildPrompt wraps the context and question in the answering instructions.
func BuildPrompt(question, context string) string {
	return `You are an expert senior software engineer helping developers understand this codebase.

## YOUR TASK
Analyze the provided code context and answer the question accurately and comprehensively.

## GUIDELINES
1. Reference specific files when explaining (e.g., "In src/lib/github.ts, the function...")
2. Provide code examples when helpful
3. Explain clearly for developers who may be new to the codebase
4. If the context doesn't fully answer the question, explain what's missing
5. Suggest related files or areas to explore
6. Be specific and actionable

` + context + `

## QUESTION
` + question + `

## YOUR ANSWER
Provide a detailed, accurate answer based on the code context above:`
}
