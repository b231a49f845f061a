package cmd

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
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

	"github.com/nova-ide/nova-install/pkg/target"
	"github.com/nova-ide/nova-install/pkg/toolchain"
)

const testAPIPrefix = "/api/v3/repos/nova-ide/nova"

// testHost serves one release for the current platform with both binaries.
type testHost struct {
	server *httptest.Server
	tag    string
	triple string
	assets map[string][]byte

	mu        sync.Mutex
	downloads int
}

func newTestHost(t *testing.T, tag string) *testHost {
	t.Helper()
	triple, err := target.Current()
	if err != nil {
		t.Skipf("platform not supported: %v", err)
	}

	h := &testHost{tag: tag, triple: triple, assets: make(map[string][]byte)}
	for _, kind := range toolchain.Kinds {
		binary := kind.ToolName()
		if target.IsWindows(triple) {
			binary += ".exe"
		}
		name := fmt.Sprintf("%s-%s.tar.gz", kind.ToolName(), triple)
		body := tarGz(t, binary, kind.ToolName()+" "+tag)
		sum := sha256.Sum256(body)
		h.assets[name] = body
		h.assets[name+".sha256"] = []byte(hex.EncodeToString(sum[:]) + " *" + name + "\n")
	}

	h.server = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.server.Close)
	return h
}

func (h *testHost) Repository() string {
	return h.server.URL + "/nova-ide/nova"
}

func (h *testHost) Downloads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.downloads
}

func (h *testHost) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == testAPIPrefix+"/releases/latest",
		r.URL.Path == testAPIPrefix+"/releases/tags/"+h.tag:
		assets := make([]map[string]string, 0, len(h.assets))
		for name := range h.assets {
			assets = append(assets, map[string]string{
				"name":                 name,
				"browser_download_url": h.server.URL + "/download/" + name,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tag_name": h.tag,
			"assets":   assets,
		})
	case strings.HasPrefix(r.URL.Path, "/download/"):
		body, ok := h.assets[strings.TrimPrefix(r.URL.Path, "/download/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if !strings.HasSuffix(r.URL.Path, ".sha256") {
			h.mu.Lock()
			h.downloads++
			h.mu.Unlock()
		}
		w.Write(body)
	default:
		http.NotFound(w, r)
	}
}

func tarGz(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzWriter)
	require.NoError(t, tarWriter.WriteHeader(&tar.Header{
		Name:     "dist/" + name,
		Mode:     0755,
		Size:     int64(len(content)),
		Typeflag: tar.TypeReg,
	}))
	_, err := tarWriter.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tarWriter.Close())
	require.NoError(t, gzWriter.Close())
	return buf.Bytes()
}
