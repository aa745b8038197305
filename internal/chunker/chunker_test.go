package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tsFunctions(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "export function compute%d(a: number): number {\n", i)
		for j := 0; j < 13; j++ {
			fmt.Fprintf(&b, "  const v%d = a + %d; // padding padding padding\n", j, j)
		}
		b.WriteString("}\n\n")
	}
	return b.String()
}

// assertCoverage checks that fragments tile the file without gaps or overlaps.
func assertCoverage(t *testing.T, content string, frags []Fragment) {
	t.Helper()
	lines := strings.Split(content, "\n")
	require.NotEmpty(t, frags)
	assert.Equal(t, 0, frags[0].StartLine)
	assert.Equal(t, len(lines)-1, frags[len(frags)-1].EndLine)
	parts := make([]string, len(frags))
	for i, f := range frags {
		if i > 0 {
			assert.Equal(t, frags[i-1].EndLine+1, f.StartLine, "fragment %d not contiguous", i)
		}
		assert.LessOrEqual(t, f.StartLine, f.EndLine)
		assert.Equal(t, i, f.ChunkIndex)
		assert.Equal(t, len(frags), f.TotalChunks)
		parts[i] = f.Content
	}
	assert.Equal(t, content, strings.Join(parts, "\n"))
}

func TestChunk_SmallFileIsWhole(t *testing.T) {
	c := New(nil, 0)
	content := "package main\n\nfunc main() {}\n"

	frags := c.Chunk("main.go", content)

	require.Len(t, frags, 1)
	f := frags[0]
	assert.Equal(t, ChunkWhole, f.ChunkType)
	assert.Equal(t, content, f.Content)
	assert.Equal(t, "main.go", f.SourceFile)
	assert.Equal(t, 0, f.StartLine)
	assert.Equal(t, 3, f.EndLine)
	assert.Equal(t, 1, f.TotalChunks)
}

func TestChunk_ExactlyMaxSizeIsWhole(t *testing.T) {
	c := New(nil, 100)
	content := strings.Repeat("a", 100)

	frags := c.Chunk("a.txt", content)

	require.Len(t, frags, 1)
	assert.Equal(t, ChunkWhole, frags[0].ChunkType)
}

func TestChunk_CutsAtDeclarationEnd(t *testing.T) {
	c := New(nil, 2000)
	content := tsFunctions(5)
	require.Greater(t, len(content), 2000)

	frags := c.Chunk("src/math.ts", content)

	assertCoverage(t, content, frags)
	require.GreaterOrEqual(t, len(frags), 2)
	assert.Equal(t, ChunkFunction, frags[0].ChunkType)
	assert.Equal(t, 0, frags[0].StartLine)
	assert.Equal(t, 14, frags[0].EndLine)
	assert.True(t, strings.HasSuffix(frags[0].Content, "}"))
}

func TestChunk_ForceCutWithoutBlankLinesOrDeclarations(t *testing.T) {
	c := New(nil, 2000)
	line := strings.Repeat("x", 39)
	content := strings.TrimSuffix(strings.Repeat(line+"\n", 200), "\n")

	frags := c.Chunk("data.txt", content)

	assertCoverage(t, content, frags)
	require.Greater(t, len(frags), 3)
	for _, f := range frags[:len(frags)-1] {
		n := utf8.RuneCountInString(f.Content)
		assert.Greater(t, n, 2000)
		assert.LessOrEqual(t, n, 2000+len(line)+1)
		assert.Equal(t, ChunkSection, f.ChunkType)
	}
}

func TestChunk_BlankLineCutAfterSeventyPercent(t *testing.T) {
	c := New(nil, 2000)
	var b strings.Builder
	for i := 0; i < 120; i++ {
		b.WriteString("some prose text line of thirty\n")
		if i%10 == 9 {
			b.WriteString("\n")
		}
	}
	content := b.String()

	frags := c.Chunk("README.md", content)

	assertCoverage(t, content, frags)
	first := frags[0]
	lines := strings.Split(first.Content, "\n")
	assert.Equal(t, "", lines[len(lines)-1], "first fragment should end on a blank line")
	n := utf8.RuneCountInString(first.Content)
	assert.Greater(t, n, 1400)
	assert.LessOrEqual(t, n, 2000)
}

func TestChunk_NoMicroFragments(t *testing.T) {
	c := New(nil, 2000)
	content := tsFunctions(6) + "}\n"

	frags := c.Chunk("src/tail.ts", content)

	assertCoverage(t, content, frags)
	for _, f := range frags {
		assert.Greater(t, utf8.RuneCountInString(strings.TrimSpace(f.Content)), minFragmentChars)
	}
}

func TestChunk_RemainderIsSection(t *testing.T) {
	c := New(nil, 2000)
	content := tsFunctions(5) + "export function tail(a: number) {\n" +
		"  const doubled = a * 2; // declaration still open at end of file\n" +
		"  return doubled"

	frags := c.Chunk("src/tail.ts", content)

	assertCoverage(t, content, frags)
	require.GreaterOrEqual(t, len(frags), 2)
	last := frags[len(frags)-1]
	assert.Contains(t, last.Content, "export function tail")
	assert.Equal(t, ChunkSection, last.ChunkType)
}

func TestChunk_SingleHugeLine(t *testing.T) {
	c := New(nil, 500)
	content := strings.Repeat("y", 1200) + "\nshort tail line that is definitely long enough to keep\n"

	frags := c.Chunk("min.js", content)

	assertCoverage(t, content, frags)
	assert.Equal(t, 0, frags[0].EndLine)
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(nil, 2000)
	content := tsFunctions(8)

	first := c.Chunk("src/a.ts", content)
	second := c.Chunk("src/a.ts", content)

	assert.Equal(t, first, second)
}

func TestBraceDetector_Marks(t *testing.T) {
	lines := []string{
		"export async function load(url: string) {",
		"  if (url) {",
		"  }",
		"}",
		"const x = 1",
	}

	marks := BraceDetector{}.Marks("a.ts", lines)

	require.Len(t, marks, len(lines))
	assert.Equal(t, LineMark{DeclStart: true, Depth: 1}, marks[0])
	assert.Equal(t, 2, marks[1].Depth)
	assert.Equal(t, 1, marks[2].Depth)
	assert.Equal(t, 0, marks[3].Depth)
	assert.False(t, marks[4].DeclStart)
}

func TestIsDeclStart(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"function foo() {", true},
		{"export default class Widget {", true},
		{"export const handler = async (req) => {", true},
		{"interface Props {", true},
		{"type Id = string", true},
		{"func (s *Server) Run() error {", true},
		{"pub fn parse(input: &str) -> Result<()> {", true},
		{"public static class Helper {", true},
		{"return foo()", false},
		{"// function in a comment", false},
		{"const limit = 10", false},
	}
	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			assert.Equal(t, tc.want, isDeclStart(tc.line))
		})
	}
}

func TestRegistry_FallbackIsBrace(t *testing.T) {
	r := NewRegistry()

	assert.IsType(t, BraceDetector{}, r.Lookup("lib/util.rb"))
	assert.Equal(t, "", r.LanguageName("lib/util.rb"))
}
