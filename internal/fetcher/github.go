package fetcher

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

// GitHubFetcher downloads a branch tarball through the GitHub REST API
// and extracts its text files in memory.
type GitHubFetcher struct {
	BaseURL string
	Branch  string
	Client  *http.Client
}

// NewGitHubFetcher creates a fetcher for the given branch. An empty
// branch selects "main".
func NewGitHubFetcher(branch string) *GitHubFetcher {
	if branch == "" {
		branch = "main"
	}
	return &GitHubFetcher{
		BaseURL: DefaultGitHubAPI,
		Branch:  branch,
		Client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (g *GitHubFetcher) Fetch(ctx context.Context, ref string, creds Credentials) ([]RawFile, error) {
	owner, repo, err := ParseGitHubRef(ref)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/tarball/%s",
		strings.TrimRight(g.BaseURL, "/"), url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(g.Branch))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", owner, repo, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, fmt.Errorf("download %s/%s@%s: %w", owner, repo, g.Branch, err)
	}

	files, err := extractTarball(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("extract %s/%s: %w", owner, repo, err)
	}
	return files, nil
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusForbidden:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return ErrRateLimited
		}
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// extractTarball reads a gzipped tar stream as produced by GitHub. Every
// entry lives under a single "<owner>-<repo>-<sha>/" directory, which is
// stripped.
func extractTarball(r io.Reader) ([]RawFile, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var files []RawFile
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		_, rel, ok := strings.Cut(hdr.Name, "/")
		if !ok || rel == "" {
			continue
		}
		if hdr.Size == 0 || hdr.Size > maxFileSize {
			continue
		}
		if skipFile(rel) || inIgnoredDir(rel, defaultIgnores) {
			continue
		}

		data, err := io.ReadAll(io.LimitReader(tr, maxFileSize+1))
		if err != nil {
			return nil, err
		}
		if isBinary(data) {
			continue
		}
		files = append(files, RawFile{Path: rel, Content: string(data)})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ParseGitHubRef accepts "owner/repo", "github.com/owner/repo" and
// "https://github.com/owner/repo(.git)".
func ParseGitHubRef(ref string) (owner, repo string, err error) {
	s := strings.TrimSpace(ref)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimPrefix(s, "github.com/")
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".git")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[0], ".") {
		return "", "", fmt.Errorf("%q: %w", ref, ErrInvalidRef)
	}
	return parts[0], parts[1], nil
}
