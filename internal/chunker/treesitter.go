package chunker

import (
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// TreeSitterDetector marks declaration regions from a syntax tree instead
// of brace counting, so languages like Python get real boundaries.
type TreeSitterDetector struct {
	name     string
	spec     *LanguageSpec
	fallback BoundaryDetector
}

// NewTreeSitterDetector creates a detector for one language. The fallback
// is used when the source cannot be parsed or the query fails to compile.
func NewTreeSitterDetector(name string, spec *LanguageSpec, fallback BoundaryDetector) *TreeSitterDetector {
	if fallback == nil {
		fallback = BraceDetector{}
	}
	return &TreeSitterDetector{name: name, spec: spec, fallback: fallback}
}

// Name returns the language name.
func (d *TreeSitterDetector) Name() string { return d.name }

func (d *TreeSitterDetector) Marks(path string, lines []string) []LineMark {
	regions, err := d.regions([]byte(strings.Join(lines, "\n")))
	if err != nil {
		return d.fallback.Marks(path, lines)
	}

	marks := make([]LineMark, len(lines))
	for _, reg := range regions {
		if reg.startLine < len(marks) {
			marks[reg.startLine].DeclStart = true
		}
		// The region is open after every line before its last one.
		for l := reg.startLine; l < reg.endLine && l < len(marks); l++ {
			marks[l].Depth++
		}
	}
	return marks
}

type region struct {
	startLine int
	endLine   int
	startByte uint32
	endByte   uint32
}

func (d *TreeSitterDetector) regions(src []byte) ([]region, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(d.spec.Language)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(d.spec.Query), d.spec.Language)
	if err != nil {
		return nil, err
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var regs []region
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			if q.CaptureNameForId(c.Index) != "chunk" {
				continue
			}
			regs = append(regs, region{
				startLine: int(c.Node.StartPoint().Row),
				endLine:   int(c.Node.EndPoint().Row),
				startByte: c.Node.StartByte(),
				endByte:   c.Node.EndByte(),
			})
		}
	}
	return outermost(regs), nil
}

// outermost removes regions that are fully contained within a larger one.
func outermost(regs []region) []region {
	if len(regs) <= 1 {
		return regs
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].startByte != regs[j].startByte {
			return regs[i].startByte < regs[j].startByte
		}
		return (regs[i].endByte - regs[i].startByte) > (regs[j].endByte - regs[j].startByte)
	})

	var out []region
	var lastEnd uint32
	for i, r := range regs {
		if i == 0 || r.startByte >= lastEnd {
			out = append(out, r)
			if r.endByte > lastEnd {
				lastEnd = r.endByte
			}
		}
	}
	return out
}
