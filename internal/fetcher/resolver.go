package fetcher

import (
	"context"
	"os"
)

// Resolver dispatches a ref to the local fetcher when it names an
// existing directory and to the GitHub fetcher otherwise.
type Resolver struct {
	Local  Fetcher
	Remote Fetcher
}

// NewResolver creates a resolver that fetches GitHub refs from branch.
func NewResolver(branch string) *Resolver {
	return &Resolver{Local: LocalFetcher{}, Remote: NewGitHubFetcher(branch)}
}

func (r *Resolver) Fetch(ctx context.Context, ref string, creds Credentials) ([]RawFile, error) {
	if IsLocal(ref) {
		return r.Local.Fetch(ctx, ref, creds)
	}
	return r.Remote.Fetch(ctx, ref, creds)
}

// IsLocal reports whether ref names an existing directory.
func IsLocal(ref string) bool {
	info, err := os.Stat(ref)
	return err == nil && info.IsDir()
}
