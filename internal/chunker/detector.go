package chunker

import (
	"regexp"
	"strings"
)

// LineMark describes one source line for the chunking loop.
type LineMark struct {
	// DeclStart is set when a function, class or type declaration begins
	// on this line.
	DeclStart bool
	// Depth is the nesting depth after this line. Zero means every open
	// declaration region has closed.
	Depth int
}

// BoundaryDetector marks declaration regions in a file. Implementations
// must return exactly one mark per line.
type BoundaryDetector interface {
	Marks(path string, lines []string) []LineMark
}

var declStartPatterns = []*regexp.Regexp{
	// JS/TS declarations.
	regexp.MustCompile(`^(export\s+)?(default\s+)?(async\s+)?(function\*?|class|interface|type|enum)\s+\w+`),
	regexp.MustCompile(`^(export\s+)?(const|let|var)\s+\w+\s*=\s*(async\s+)?(\(|function\b)`),
	// Go.
	regexp.MustCompile(`^func\s+`),
	// Rust.
	regexp.MustCompile(`^(pub(\([^)]*\))?\s+)?(async\s+)?(fn|struct|enum|trait|impl)\b`),
	// Java, C#, Kotlin.
	regexp.MustCompile(`^((public|private|protected|internal|static|abstract|final|sealed|open|data)\s+)+(class|interface|enum|record|struct|object|fun)\s+\w+`),
}

// BraceDetector is the language-agnostic fallback: it recognizes
// declaration starts by pattern and tracks depth by counting braces.
type BraceDetector struct{}

func (BraceDetector) Marks(_ string, lines []string) []LineMark {
	marks := make([]LineMark, len(lines))
	depth := 0
	for i, line := range lines {
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		marks[i] = LineMark{
			DeclStart: isDeclStart(strings.TrimSpace(line)),
			Depth:     depth,
		}
	}
	return marks
}

func isDeclStart(trimmed string) bool {
	for _, re := range declStartPatterns {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}
