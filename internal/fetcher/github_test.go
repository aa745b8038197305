package fetcher

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tarball(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "acme-shop-abc123/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for name, body := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     "acme-shop-abc123/" + name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(body)),
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestGitHubFetcher_Fetch(t *testing.T) {
	archive := tarball(t, map[string]string{
		"src/auth/login.ts":   "export function login() {}\n",
		"README.md":           "# shop\n",
		"yarn.lock":           "lock\n",
		"node_modules/x/i.js": "x\n",
		"assets/logo.bin":     "PNG\x00\x01",
		"docs/empty.md":       "",
	})

	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write(archive)
	}))
	defer srv.Close()

	g := NewGitHubFetcher("develop")
	g.BaseURL = srv.URL
	files, err := g.Fetch(context.Background(), "https://github.com/acme/shop.git", Credentials{Token: "tok"})
	require.NoError(t, err)

	assert.Equal(t, "/repos/acme/shop/tarball/develop", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, []string{"README.md", "src/auth/login.ts"}, paths(files))
	assert.Equal(t, "export function login() {}\n", files[1].Content)
}

func TestGitHubFetcher_StatusMapping(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		remaining string
		want      error
	}{
		{"unauthorized", http.StatusUnauthorized, "", ErrUnauthorized},
		{"forbidden", http.StatusForbidden, "12", ErrUnauthorized},
		{"quota exhausted", http.StatusForbidden, "0", ErrRateLimited},
		{"too many requests", http.StatusTooManyRequests, "", ErrRateLimited},
		{"not found", http.StatusNotFound, "", ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.remaining != "" {
					w.Header().Set("X-RateLimit-Remaining", tc.remaining)
				}
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			g := NewGitHubFetcher("")
			g.BaseURL = srv.URL
			_, err := g.Fetch(context.Background(), "acme/shop", Credentials{})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParseGitHubRef(t *testing.T) {
	cases := []struct {
		ref         string
		owner, repo string
		ok          bool
	}{
		{"acme/shop", "acme", "shop", true},
		{"github.com/acme/shop", "acme", "shop", true},
		{"https://github.com/acme/shop", "acme", "shop", true},
		{"https://github.com/acme/shop.git", "acme", "shop", true},
		{"https://github.com/acme/shop/", "acme", "shop", true},
		{"https://gitlab.com/acme/shop", "", "", false},
		{"shop", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.ref, func(t *testing.T) {
			owner, repo, err := ParseGitHubRef(tc.ref)
			if !tc.ok {
				assert.ErrorIs(t, err, ErrInvalidRef)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.owner, owner)
			assert.Equal(t, tc.repo, repo)
		})
	}
}

type stubFetcher struct{ called string }

func (s *stubFetcher) Fetch(_ context.Context, ref string, _ Credentials) ([]RawFile, error) {
	s.called = ref
	return nil, nil
}

func TestResolver(t *testing.T) {
	local, remote := &stubFetcher{}, &stubFetcher{}
	r := &Resolver{Local: local, Remote: remote}
	dir := t.TempDir()

	_, _ = r.Fetch(context.Background(), dir, Credentials{})
	_, _ = r.Fetch(context.Background(), "acme/shop", Credentials{})

	assert.Equal(t, dir, local.called)
	assert.Equal(t, "acme/shop", remote.called)
}
