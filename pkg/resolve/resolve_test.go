package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nova-ide/nova-install/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelease struct {
	TagName    string      `json:"tag_name"`
	Draft      bool        `json:"draft"`
	Prerelease bool        `json:"prerelease"`
	Assets     []fakeAsset `json:"assets"`
}

type fakeAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// fakeHost serves the subset of the releases API the resolver uses.
type fakeHost struct {
	*httptest.Server
	releases []fakeRelease
	latest   *fakeRelease
	requests atomic.Int32

	mu       sync.Mutex
	lastPath string
	perPage  string
}

func (h *fakeHost) LastPath() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastPath
}

func (h *fakeHost) PerPage() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.perPage
}

func newFakeHost(t *testing.T, releases []fakeRelease, latest *fakeRelease) (*fakeHost, repository.Reference) {
	t.Helper()
	h := &fakeHost{releases: releases, latest: latest}
	const prefix = "/api/v3/repos/nova-ide/nova"

	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.requests.Add(1)
		h.mu.Lock()
		h.lastPath = r.URL.Path
		h.mu.Unlock()
		path := strings.TrimPrefix(r.URL.Path, prefix)

		switch {
		case path == "/releases/latest":
			if h.latest == nil {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode(h.latest)
		case strings.HasPrefix(path, "/releases/tags/"):
			tag := strings.TrimPrefix(path, "/releases/tags/")
			for _, rel := range h.releases {
				if rel.TagName == tag {
					json.NewEncoder(w).Encode(rel)
					return
				}
			}
			http.NotFound(w, r)
		case path == "/releases":
			h.mu.Lock()
			h.perPage = r.URL.Query().Get("per_page")
			h.mu.Unlock()
			json.NewEncoder(w).Encode(h.releases)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(h.Close)

	ref, err := repository.Parse(h.URL + prefix)
	require.NoError(t, err)
	return h, ref
}

func release(tag string, prerelease, draft bool) fakeRelease {
	return fakeRelease{
		TagName:    tag,
		Prerelease: prerelease,
		Draft:      draft,
		Assets: []fakeAsset{
			{Name: "nova-lsp-x86_64-unknown-linux-gnu.tar.xz", BrowserDownloadURL: "https://example.invalid/" + tag + "/nova-lsp.tar.xz"},
		},
	}
}

func TestResolveExplicitTag(t *testing.T) {
	v2 := release("v0.2.0", false, false)
	host, ref := newFakeHost(t, []fakeRelease{release("v0.3.0", true, false), v2}, nil)

	got, err := NewResolver(host.Client()).Resolve(context.Background(), ref, ChannelStable, "v0.2.0")
	require.NoError(t, err)

	assert.Equal(t, "v0.2.0", got.Tag)
	assert.Equal(t, int32(1), host.requests.Load())
	assert.Equal(t, "/api/v3/repos/nova-ide/nova/releases/tags/v0.2.0", host.LastPath())
	require.Len(t, got.Assets, 1)
	assert.Equal(t, Asset{
		Name:        "nova-lsp-x86_64-unknown-linux-gnu.tar.xz",
		DownloadURL: "https://example.invalid/v0.2.0/nova-lsp.tar.xz",
	}, got.Assets[0])
}

func TestResolveExplicitTagNotFound(t *testing.T) {
	host, ref := newFakeHost(t, nil, nil)

	_, err := NewResolver(host.Client()).Resolve(context.Background(), ref, ChannelPrerelease, "v9.9.9")

	var notFound *ReleaseNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, "v9.9.9", notFound.Tag)
	assert.Equal(t, "nova-ide/nova", notFound.Repo)
}

func TestResolveLatestStable(t *testing.T) {
	stable := release("v0.2.0", false, false)
	host, ref := newFakeHost(t, []fakeRelease{release("v0.3.0-rc.1", true, false), stable}, &stable)

	got, err := NewResolver(host.Client()).Resolve(context.Background(), ref, ChannelStable, Latest)
	require.NoError(t, err)
	assert.Equal(t, "v0.2.0", got.Tag)
	assert.False(t, got.Prerelease)
	assert.Equal(t, "/api/v3/repos/nova-ide/nova/releases/latest", host.LastPath())
}

func TestResolveLatestStableWithoutStableReleases(t *testing.T) {
	host, ref := newFakeHost(t, []fakeRelease{release("v0.1.0-alpha", true, false)}, nil)

	_, err := NewResolver(host.Client()).Resolve(context.Background(), ref, ChannelStable, "")

	var noStable *NoStableReleasesError
	require.True(t, errors.As(err, &noStable), "got %v", err)
	assert.Contains(t, err.Error(), "No stable releases found")
	assert.Contains(t, err.Error(), "prerelease")
}

func TestResolveLatestPrerelease(t *testing.T) {
	tests := []struct {
		name     string
		releases []fakeRelease
		wantTag  string
		wantPre  bool
		wantNone bool
	}{
		{
			name: "prerelease newer than stable wins",
			releases: []fakeRelease{
				release("v0.3.0-rc.1", true, false),
				release("v0.2.0", false, false),
			},
			wantTag: "v0.3.0-rc.1",
			wantPre: true,
		},
		{
			name: "stable newer than prerelease wins",
			releases: []fakeRelease{
				release("v0.3.0", false, false),
				release("v0.3.0-rc.1", true, false),
			},
			wantTag: "v0.3.0",
		},
		{
			name: "drafts are skipped",
			releases: []fakeRelease{
				release("v0.4.0", false, true),
				release("v0.4.0-rc.1", true, true),
				release("v0.3.0-rc.2", true, false),
			},
			wantTag: "v0.3.0-rc.2",
			wantPre: true,
		},
		{
			name:     "only drafts",
			releases: []fakeRelease{release("v0.4.0", false, true)},
			wantNone: true,
		},
		{
			name:     "no releases",
			releases: []fakeRelease{},
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, ref := newFakeHost(t, tt.releases, nil)

			got, err := NewResolver(host.Client()).Resolve(context.Background(), ref, ChannelPrerelease, Latest)
			assert.Equal(t, "20", host.PerPage())
			if tt.wantNone {
				var none *NoReleasesError
				require.True(t, errors.As(err, &none), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTag, got.Tag)
			assert.Equal(t, tt.wantPre, got.Prerelease)
		})
	}
}

func TestResolveServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ref, err := repository.Parse(server.URL + "/api/v3/repos/nova-ide/nova")
	require.NoError(t, err)

	_, err = NewResolver(server.Client()).Resolve(context.Background(), ref, ChannelStable, Latest)
	require.Error(t, err)

	var noStable *NoStableReleasesError
	assert.False(t, errors.As(err, &noStable))
}

func TestParseChannel(t *testing.T) {
	c, err := ParseChannel("")
	require.NoError(t, err)
	assert.Equal(t, ChannelStable, c)

	c, err = ParseChannel("prerelease")
	require.NoError(t, err)
	assert.Equal(t, ChannelPrerelease, c)

	_, err = ParseChannel("nightly")
	assert.Error(t, err)
}
