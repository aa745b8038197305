package chunker

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// LanguageSpec defines the tree-sitter grammar and query for a language.
type LanguageSpec struct {
	Language *sitter.Language
	// Query is a tree-sitter S-expression query that captures top-level
	// definitions. It must use @chunk for the outer node and @name for the
	// identifier (optional).
	Query      string
	Extensions []string
}

// Registry maps file extensions to boundary detectors. Extensions with no
// registered language use BraceDetector.
type Registry struct {
	mu        sync.RWMutex
	detectors map[string]BoundaryDetector // extension (without dot) → detector
	langs     map[string]string           // extension → language name
	fallback  BoundaryDetector
}

// NewRegistry creates a registry that only knows the brace fallback.
func NewRegistry() *Registry {
	return &Registry{
		detectors: make(map[string]BoundaryDetector),
		langs:     make(map[string]string),
		fallback:  BraceDetector{},
	}
}

// Register adds a tree-sitter language under the given name.
func (r *Registry) Register(name string, spec *LanguageSpec) {
	d := NewTreeSitterDetector(name, spec, r.fallback)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range spec.Extensions {
		r.detectors[ext] = d
		r.langs[ext] = name
	}
}

// Lookup returns the detector for a file path based on its extension.
func (r *Registry) Lookup(path string) BoundaryDetector {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.detectors[ext]; ok {
		return d
	}
	return r.fallback
}

// LanguageName returns the language name for a file path, or "".
func (r *Registry) LanguageName(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.langs[ext]
}
