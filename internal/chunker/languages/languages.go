// Package languages registers the tree-sitter grammars used for
// syntax-aware fragment boundaries.
package languages

import (
	"repolens/internal/chunker"

	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

const goQuery = `
	(function_declaration name: (identifier) @name) @chunk
	(method_declaration name: (field_identifier) @name) @chunk
	(type_declaration (type_spec name: (type_identifier) @name)) @chunk
`

const jsQuery = `
	(function_declaration name: (identifier) @name) @chunk
	(generator_function_declaration name: (identifier) @name) @chunk
	(class_declaration name: (identifier) @name) @chunk
	(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
	(lexical_declaration (variable_declarator name: (identifier) @name value: (function_expression))) @chunk
`

const tsQuery = `
	(function_declaration name: (identifier) @name) @chunk
	(class_declaration name: (type_identifier) @name) @chunk
	(abstract_class_declaration name: (type_identifier) @name) @chunk
	(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
	(interface_declaration name: (type_identifier) @name) @chunk
	(type_alias_declaration name: (type_identifier) @name) @chunk
	(enum_declaration name: (identifier) @name) @chunk
`

const pyQuery = `
	(function_definition name: (identifier) @name) @chunk
	(class_definition name: (identifier) @name) @chunk
	(decorated_definition) @chunk
`

// RegisterAll registers every bundled grammar.
func RegisterAll(r *chunker.Registry) {
	RegisterGo(r)
	RegisterJavaScript(r)
	RegisterTypeScript(r)
	RegisterPython(r)
}

func RegisterGo(r *chunker.Registry) {
	r.Register("go", &chunker.LanguageSpec{
		Language:   golang.GetLanguage(),
		Query:      goQuery,
		Extensions: []string{"go"},
	})
}

func RegisterJavaScript(r *chunker.Registry) {
	r.Register("javascript", &chunker.LanguageSpec{
		Language:   javascript.GetLanguage(),
		Query:      jsQuery,
		Extensions: []string{"js", "jsx", "mjs", "cjs"},
	})
}

// RegisterTypeScript registers both the plain and the JSX dialect; they
// need different grammars.
func RegisterTypeScript(r *chunker.Registry) {
	r.Register("typescript", &chunker.LanguageSpec{
		Language:   typescript.GetLanguage(),
		Query:      tsQuery,
		Extensions: []string{"ts", "mts", "cts"},
	})
	r.Register("tsx", &chunker.LanguageSpec{
		Language:   tsx.GetLanguage(),
		Query:      tsQuery,
		Extensions: []string{"tsx"},
	})
}

func RegisterPython(r *chunker.Registry) {
	r.Register("python", &chunker.LanguageSpec{
		Language:   python.GetLanguage(),
		Query:      pyQuery,
		Extensions: []string{"py", "pyi"},
	})
}
