// Package fetch downloads release metadata and assets.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/nova-ide/nova-install/pkg/httpclient"
	"github.com/pkg/errors"
)

const (
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "nova-install"
	// DefaultMaxBufferSize caps payloads fetched into memory (checksum manifests).
	DefaultMaxBufferSize = 1 << 20
)

// DownloadFailedError is returned for any non-2xx response.
type DownloadFailedError struct {
	URL        string
	StatusCode int
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("download of %s failed: unexpected status code %d", e.URL, e.StatusCode)
}

// ProgressFunc is a callback for download progress
type ProgressFunc func(downloaded, total int64)

// Fetcher issues GET requests through an authorizing client. Requests are
// not retried.
type Fetcher struct {
	Client        *http.Client
	UserAgent     string
	MaxBufferSize int64
	Progress      ProgressFunc
}

// New returns a Fetcher using client, or httpclient.NewClient() when nil.
func New(client *http.Client) *Fetcher {
	if client == nil {
		client = httpclient.NewClient()
	}
	return &Fetcher{
		Client:        client,
		UserAgent:     DefaultUserAgent,
		MaxBufferSize: DefaultMaxBufferSize,
	}
}

// Fetch copies the body of url into w and returns the number of bytes written.
func (f *Fetcher) Fetch(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to fetch %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &DownloadFailedError{URL: url, StatusCode: resp.StatusCode}
	}

	var src io.Reader = resp.Body
	if f.Progress != nil {
		src = &progressReader{Reader: resp.Body, Total: resp.ContentLength, progress: f.Progress}
	}

	written, err := io.Copy(w, src)
	if err != nil {
		return written, errors.Wrapf(err, "failed to read body of %s", url)
	}
	return written, nil
}

// Download streams url into a new temporary file inside dir and returns its
// path. On any failure the temporary file is removed.
func (f *Fetcher) Download(ctx context.Context, url, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create destination directory")
	}

	tmpFile, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temporary file")
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	written, err := f.Fetch(ctx, url, tmpFile)
	if err != nil {
		return "", err
	}
	if written == 0 {
		return "", fmt.Errorf("no content downloaded from %s", url)
	}

	if err := tmpFile.Close(); err != nil {
		return "", errors.Wrap(err, "failed to close temporary file")
	}

	success = true
	return tmpPath, nil
}

// FetchBytes buffers url in memory. Payloads larger than MaxBufferSize are
// rejected.
func (f *Fetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	limit := f.MaxBufferSize
	if limit <= 0 {
		limit = DefaultMaxBufferSize
	}

	buf := &limitedBuffer{limit: limit}
	if _, err := f.Fetch(ctx, url, buf); err != nil {
		if errors.Is(err, errTooLarge) {
			return nil, fmt.Errorf("%s exceeds %d bytes", url, limit)
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *Fetcher) userAgent() string {
	if f.UserAgent == "" {
		return DefaultUserAgent
	}
	return f.UserAgent
}

var errTooLarge = errors.New("payload too large")

// limitedBuffer keeps the buffer in a named field so that io.Copy cannot
// reach bytes.Buffer.ReadFrom and skip the limit check in Write.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int64
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if int64(b.buf.Len()+len(p)) > b.limit {
		return 0, errTooLarge
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

// progressReader wraps an io.Reader to report progress
type progressReader struct {
	Reader   io.Reader
	Total    int64
	Current  int64
	progress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.Current += int64(n)
		pr.progress(pr.Current, pr.Total)
	}
	return n, err
}
