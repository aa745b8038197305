package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChunkSize is the fragment size budget in characters.
const DefaultMaxChunkSize = 2000

const (
	// minFragmentChars is the smallest trimmed fragment emitted at a cut.
	// Smaller buffers keep accumulating into the next fragment.
	minFragmentChars = 50
	// declCutMinLines is how many lines a declaration region must span
	// before returning to depth zero closes the fragment.
	declCutMinLines = 10
	// blankCutRatio of the size budget after which a blank line closes
	// the fragment.
	blankCutRatio = 0.7
)

// ChunkType classifies how a fragment boundary was chosen.
type ChunkType string

const (
	ChunkWhole    ChunkType = "whole"
	ChunkFunction ChunkType = "function"
	ChunkSection  ChunkType = "section"
)

// Fragment is a bounded slice of a source file. Lines are 0-indexed and
// inclusive.
type Fragment struct {
	Content     string
	SourceFile  string
	ChunkIndex  int
	TotalChunks int
	StartLine   int
	EndLine     int
	ChunkType   ChunkType
}

// Chunker splits file content into fragments using the boundary detector
// registered for the file's extension.
type Chunker struct {
	registry *Registry
	maxSize  int
}

// New creates a chunker. A nil registry uses brace detection for every
// file; maxSize <= 0 selects DefaultMaxChunkSize.
func New(r *Registry, maxSize int) *Chunker {
	if r == nil {
		r = NewRegistry()
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	return &Chunker{registry: r, maxSize: maxSize}
}

// MaxSize returns the configured size budget.
func (c *Chunker) MaxSize() int { return c.maxSize }

// Chunk splits content into fragments. Concatenating the fragments in
// ChunkIndex order reproduces the file's lines.
func (c *Chunker) Chunk(path, content string) []Fragment {
	lines := strings.Split(content, "\n")

	if utf8.RuneCountInString(content) <= c.maxSize {
		return []Fragment{{
			Content:     content,
			SourceFile:  path,
			ChunkIndex:  0,
			TotalChunks: 1,
			StartLine:   0,
			EndLine:     len(lines) - 1,
			ChunkType:   ChunkWhole,
		}}
	}

	marks := c.registry.Lookup(path).Marks(path, lines)
	frags := split(path, lines, marks, c.maxSize)
	for i := range frags {
		frags[i].ChunkIndex = i
		frags[i].TotalChunks = len(frags)
	}
	return frags
}

func split(path string, lines []string, marks []LineMark, maxSize int) []Fragment {
	var (
		frags   []Fragment
		start   int
		bufLen  int // rune length of lines[start:i+1] joined with "\n"
		inDecl  bool
		blankAt = int(float64(maxSize) * blankCutRatio)
	)

	emit := func(end int, typ ChunkType) {
		frags = append(frags, Fragment{
			Content:    strings.Join(lines[start:end+1], "\n"),
			SourceFile: path,
			StartLine:  start,
			EndLine:    end,
			ChunkType:  typ,
		})
	}

	for i, line := range lines {
		if i > start {
			bufLen++
		}
		bufLen += utf8.RuneCountInString(line)

		mark := marks[i]
		if mark.DeclStart {
			inDecl = true
		}
		lineCount := i - start + 1

		cut := bufLen > maxSize ||
			(inDecl && mark.Depth == 0 && lineCount > declCutMinLines) ||
			(strings.TrimSpace(line) == "" && bufLen > blankAt)
		if !cut {
			continue
		}
		if trimmedLen(lines[start:i+1]) <= minFragmentChars {
			continue
		}

		emit(i, typeFor(inDecl))
		start = i + 1
		bufLen = 0
		inDecl = false
	}

	if start >= len(lines) {
		return frags
	}

	last := len(lines) - 1
	if len(frags) > 0 && trimmedLen(lines[start:]) <= minFragmentChars {
		prev := &frags[len(frags)-1]
		prev.EndLine = last
		prev.Content = strings.Join(lines[prev.StartLine:last+1], "\n")
		return frags
	}
	// End of file is not a cut, so the remainder is always a section.
	emit(last, ChunkSection)
	return frags
}

func typeFor(inDecl bool) ChunkType {
	if inDecl {
		return ChunkFunction
	}
	return ChunkSection
}

func trimmedLen(lines []string) int {
	return utf8.RuneCountInString(strings.TrimSpace(strings.Join(lines, "\n")))
}
