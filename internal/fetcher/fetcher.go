// Package fetcher retrieves the source files of a repository, either from
// a local checkout or from the GitHub API.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"path"
	"slices"
	"strings"
)

var (
	ErrUnauthorized = errors.New("fetcher: unauthorized")
	ErrRateLimited  = errors.New("fetcher: rate limited")
	ErrNotFound     = errors.New("fetcher: repository not found")
	ErrInvalidRef   = errors.New("fetcher: invalid repository reference")
)

// maxFileSize is the largest file we'll consider (1 MB).
const maxFileSize = 1 << 20

// RawFile is one file of a repository. Path is slash-separated and
// relative to the repository root.
type RawFile struct {
	Path    string
	Content string
}

// Credentials authenticate against a remote repository host. The zero
// value means anonymous access.
type Credentials struct {
	Token string
}

// Fetcher returns the files of the repository identified by ref, ordered
// by path.
type Fetcher interface {
	Fetch(ctx context.Context, ref string, creds Credentials) ([]RawFile, error)
}

// defaultIgnores are directory names skipped when no .repolensignore
// file exists.
var defaultIgnores = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"vendor",
	"__pycache__",
	".idea",
	".vscode",
	".repolens",
	"dist",
	"build",
}

// skippedFiles are never indexed; they carry no useful meaning and are
// often large.
var skippedFiles = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"bun.lockb":         true,
	".gitignore":        true,
	".env.example":      true,
}

// IgnoredDir reports whether a directory with this base name is skipped
// by default.
func IgnoredDir(name string) bool {
	return slices.Contains(defaultIgnores, name)
}

func skipFile(rel string) bool {
	return skippedFiles[path.Base(rel)]
}

// inIgnoredDir reports whether any directory segment of rel is ignored.
func inIgnoredDir(rel string, ignores []string) bool {
	segs := strings.Split(rel, "/")
	for i := 0; i < len(segs)-1; i++ {
		if matchesIgnore(segs[i], strings.Join(segs[:i+1], "/"), ignores) {
			return true
		}
	}
	return false
}

// isBinary sniffs the first 8000 bytes for a NUL, the same heuristic git uses.
func isBinary(data []byte) bool {
	if len(data) > 8000 {
		data = data[:8000]
	}
	return bytes.IndexByte(data, 0) >= 0
}
