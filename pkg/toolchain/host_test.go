package toolchain

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

const apiPrefix = "/api/v3/repos/nova-ide/nova"

type fakeAsset struct {
	name string
	body []byte
	// status overrides the response code when set
	status int
}

type fakeRelease struct {
	tag        string
	draft      bool
	prerelease bool
	assets     []fakeAsset
}

// releaseHost is an in-memory release host serving the GitHub REST paths
// used by the resolver plus the asset downloads.
type releaseHost struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	releases []fakeRelease
	latest   string
	hits     map[string]int
	auth     []string
	gates    map[string]chan struct{}
	started  map[string]chan struct{}
	// downloadBase replaces the server URL in asset links when set
	downloadBase string
}

func newReleaseHost(t *testing.T) *releaseHost {
	t.Helper()
	h := &releaseHost{
		t:       t,
		hits:    make(map[string]int),
		gates:   make(map[string]chan struct{}),
		started: make(map[string]chan struct{}),
	}
	h.server = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.server.Close)
	return h
}

// Repository is the reference that points a Manager at this host.
func (h *releaseHost) Repository() string {
	return h.server.URL + "/nova-ide/nova"
}

func (h *releaseHost) APIBaseURL() string {
	return h.server.URL + apiPrefix
}

// ServeAssetsFromLocalhost makes asset links name the server as localhost so
// downloads go to a different host than the API.
func (h *releaseHost) ServeAssetsFromLocalhost() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.downloadBase = strings.Replace(h.server.URL, "127.0.0.1", "localhost", 1)
}

func (h *releaseHost) AddRelease(r fakeRelease) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releases = append(h.releases, r)
}

func (h *releaseHost) SetLatest(tag string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = tag
}

// Gate blocks downloads of the named asset until the returned func is
// called. The started channel is closed when the first request arrives.
func (h *releaseHost) Gate(name string) (started <-chan struct{}, open func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	gate := make(chan struct{})
	st := make(chan struct{})
	h.gates[name] = gate
	h.started[name] = st
	var once sync.Once
	return st, func() { once.Do(func() { close(gate) }) }
}

func (h *releaseHost) Hits(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func (h *releaseHost) TotalHits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, n := range h.hits {
		total += n
	}
	return total
}

func (h *releaseHost) ResetHits() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hits = make(map[string]int)
	h.auth = nil
}

func (h *releaseHost) AuthHeaders() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.auth...)
}

func (h *releaseHost) serve(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.hits[r.URL.Path]++
	h.auth = append(h.auth, r.Header.Get("Authorization"))
	releases := append([]fakeRelease(nil), h.releases...)
	latest := h.latest
	base := h.downloadBase
	h.mu.Unlock()
	if base == "" {
		base = h.server.URL
	}

	switch {
	case r.URL.Path == apiPrefix+"/releases/latest":
		for _, rel := range releases {
			if rel.tag == latest {
				h.writeJSON(w, h.releaseJSON(base, rel))
				return
			}
		}
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	case strings.HasPrefix(r.URL.Path, apiPrefix+"/releases/tags/"):
		tag := strings.TrimPrefix(r.URL.Path, apiPrefix+"/releases/tags/")
		for _, rel := range releases {
			if rel.tag == tag {
				h.writeJSON(w, h.releaseJSON(base, rel))
				return
			}
		}
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	case r.URL.Path == apiPrefix+"/releases":
		list := make([]map[string]interface{}, 0, len(releases))
		for i := len(releases) - 1; i >= 0; i-- {
			list = append(list, h.releaseJSON(base, releases[i]))
		}
		h.writeJSON(w, list)
	case strings.HasPrefix(r.URL.Path, "/download/"):
		h.serveAsset(w, r, releases)
	default:
		http.NotFound(w, r)
	}
}

func (h *releaseHost) serveAsset(w http.ResponseWriter, r *http.Request, releases []fakeRelease) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/download/"), "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}

	h.mu.Lock()
	gate := h.gates[parts[1]]
	if st, ok := h.started[parts[1]]; ok {
		close(st)
		delete(h.started, parts[1])
	}
	h.mu.Unlock()
	if gate != nil {
		<-gate
	}

	for _, rel := range releases {
		if rel.tag != parts[0] {
			continue
		}
		for _, a := range rel.assets {
			if a.name == parts[1] {
				if a.status != 0 {
					http.Error(w, http.StatusText(a.status), a.status)
					return
				}
				w.Header().Set("Content-Type", "application/octet-stream")
				w.Write(a.body)
				return
			}
		}
	}
	http.NotFound(w, r)
}

func (h *releaseHost) releaseJSON(base string, rel fakeRelease) map[string]interface{} {
	assets := make([]map[string]interface{}, 0, len(rel.assets))
	for _, a := range rel.assets {
		assets = append(assets, map[string]interface{}{
			"name":                 a.name,
			"browser_download_url": fmt.Sprintf("%s/download/%s/%s", base, rel.tag, a.name),
		})
	}
	return map[string]interface{}{
		"tag_name":   rel.tag,
		"draft":      rel.draft,
		"prerelease": rel.prerelease,
		"assets":     assets,
	}
}

func (h *releaseHost) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(h.t, json.NewEncoder(w).Encode(v))
}

// tarXz builds a release archive holding files under a top-level directory.
func tarXz(t *testing.T, dir string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	xzWriter, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	tarWriter := tar.NewWriter(xzWriter)
	for name, content := range files {
		require.NoError(t, tarWriter.WriteHeader(&tar.Header{
			Name:     dir + "/" + name,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tarWriter.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tarWriter.Close())
	require.NoError(t, xzWriter.Close())
	return buf.Bytes()
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zipWriter.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zipWriter.Close())
	return buf.Bytes()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// linuxRelease publishes tool archives for x86_64 linux with GNU style
// checksum manifests.
func linuxRelease(t *testing.T, tag string, tools ...string) fakeRelease {
	t.Helper()
	rel := fakeRelease{tag: tag}
	for _, tool := range tools {
		name := tool + "-x86_64-unknown-linux-gnu.tar.xz"
		body := tarXz(t, tool+"-x86_64-unknown-linux-gnu", map[string]string{
			tool:        tool + " " + tag,
			"README.md": "readme",
		})
		rel.assets = append(rel.assets,
			fakeAsset{name: name, body: body},
			fakeAsset{name: name + ".sha256", body: []byte(sha256Hex(body) + "  " + name + "\n")},
		)
	}
	return rel
}
