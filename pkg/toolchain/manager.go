// Package toolchain installs and locates the managed nova binaries.
package toolchain

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/nova-ide/nova-install/pkg/archive"
	"github.com/nova-ide/nova-install/pkg/asset"
	"github.com/nova-ide/nova-install/pkg/checksums"
	"github.com/nova-ide/nova-install/pkg/config"
	"github.com/nova-ide/nova-install/pkg/fetch"
	"github.com/nova-ide/nova-install/pkg/httpclient"
	"github.com/nova-ide/nova-install/pkg/install"
	"github.com/nova-ide/nova-install/pkg/repository"
	"github.com/nova-ide/nova-install/pkg/resolve"
	"github.com/nova-ide/nova-install/pkg/target"
	"github.com/nova-ide/nova-install/pkg/verify"
)

var (
	// ErrNotInstalled is returned by ResolvePath when no binary is available
	// and downloads are disabled.
	ErrNotInstalled = errors.New("binary is not installed and auto download is disabled")
	// ErrExplicitPathMissing is returned when the configured path does not exist.
	ErrExplicitPathMissing = errors.New("configured binary path does not exist")
)

// Result describes an installed binary.
type Result struct {
	Path    string `json:"path" yaml:"path"`
	Version string `json:"version" yaml:"version"`
}

// Options configures a Manager.
type Options struct {
	// Root is the storage root; empty resolves to the platform default.
	Root string
	// Platform and Arch default to the running system.
	Platform string
	Arch     string
	// HTTPClient is shared by release lookups and downloads. Nil uses
	// httpclient.NewClient().
	HTTPClient *http.Client
	// Progress receives archive download progress.
	Progress fetch.ProgressFunc
}

// Manager coordinates installs of the server and dap binaries. Concurrent
// requests for the same kind share a single install.
type Manager struct {
	root     string
	platform string
	arch     string
	resolver *resolve.Resolver
	fetcher  *fetch.Fetcher
	flights  map[Kind]*flight
}

// flight serializes installs of one kind.
type flight struct {
	group singleflight.Group
	// waiting counts callers attached to the running install
	waiting atomic.Int32
}

// NewManager creates a Manager.
func NewManager(opts Options) (*Manager, error) {
	root, err := install.ResolveRoot(opts.Root)
	if err != nil {
		return nil, err
	}

	client := opts.HTTPClient
	if client == nil {
		client = httpclient.NewClient()
	}

	m := &Manager{
		root:     root,
		platform: opts.Platform,
		arch:     opts.Arch,
		resolver: resolve.NewResolver(client),
		fetcher:  fetch.New(client),
		flights:  make(map[Kind]*flight, len(Kinds)),
	}
	if m.platform == "" {
		m.platform = runtime.GOOS
	}
	if m.arch == "" {
		m.arch = runtime.GOARCH
	}
	m.fetcher.Progress = opts.Progress
	for _, k := range Kinds {
		m.flights[k] = &flight{}
	}
	return m, nil
}

// Root returns the storage root.
func (m *Manager) Root() string {
	return m.root
}

// BinaryPath returns where the binary for kind is installed.
func (m *Manager) BinaryPath(kind Kind) string {
	name := kind.ToolName()
	if triple, err := target.Detect(m.platform, m.arch); err == nil && target.IsWindows(triple) {
		name += ".exe"
	}
	return filepath.Join(m.root, string(kind), name)
}

// InstallServer is InstallOrUpdate for the language server.
func (m *Manager) InstallServer(ctx context.Context, settings config.Settings) (Result, error) {
	return m.InstallOrUpdate(ctx, KindServer, settings)
}

// InstallDAP is InstallOrUpdate for the debug adapter.
func (m *Manager) InstallDAP(ctx context.Context, settings config.Settings) (Result, error) {
	return m.InstallOrUpdate(ctx, KindDAP, settings)
}

// InstallOrUpdate makes sure the release selected by settings is installed
// for kind and returns its path and tag. While an install for kind is
// running, further callers wait for it and receive the same outcome. The
// shared install keeps the values of the starting caller's context but not
// its cancellation, so a caller that gives up does not fail the others.
// Each caller stops waiting when its own context is done.
func (m *Manager) InstallOrUpdate(ctx context.Context, kind Kind, settings config.Settings) (Result, error) {
	f, ok := m.flights[kind]
	if !ok {
		return Result{}, fmt.Errorf("unknown binary kind %q", kind)
	}

	installCtx := context.WithoutCancel(ctx)
	ch := f.group.DoChan(string(kind), func() (interface{}, error) {
		return m.install(installCtx, kind, settings)
	})
	f.waiting.Add(1)
	defer f.waiting.Add(-1)

	select {
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		if res.Shared {
			log.WithField("waiting", f.waiting.Load()).Debugf("Joined in-flight %s install", kind)
		}
		return res.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (m *Manager) install(ctx context.Context, kind Kind, settings config.Settings) (Result, error) {
	triple, err := target.Detect(m.platform, m.arch)
	if err != nil {
		return Result{}, err
	}

	ref, err := repository.Parse(settings.ReleaseURLOrRepoRef)
	if err != nil {
		return Result{}, err
	}
	ctx = httpclient.WithEnterpriseHost(ctx, ref.Host())

	channel := settings.ReleaseChannel
	if channel == "" {
		channel = resolve.ChannelStable
	}
	version := settings.Version
	if version == "" {
		version = resolve.Latest
	}

	binaryPath := m.BinaryPath(kind)
	logger := log.WithFields(log.Fields{
		"binary": kind.ToolName(),
		"target": triple,
		"repo":   ref.String(),
	})

	current := install.Lookup(binaryPath)
	if version != resolve.Latest && current.Matches(version, triple, ref.APIBaseURL) {
		logger.Debugf("%s is already installed", version)
		return Result{Path: binaryPath, Version: version}, nil
	}

	release, err := m.resolver.Resolve(ctx, ref, channel, version)
	if err != nil {
		return Result{}, err
	}
	if current.Matches(release.Tag, triple, ref.APIBaseURL) {
		logger.Debugf("%s is already installed", release.Tag)
		return Result{Path: binaryPath, Version: release.Tag}, nil
	}

	selection, err := asset.Select(release.Assets, kind.ToolName(), triple)
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(m.root, 0755); err != nil {
		return Result{}, errors.Wrap(err, "failed to create storage root")
	}
	tmpDir, err := os.MkdirTemp(m.root, ".tmp-*")
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to create temporary directory")
	}
	defer os.RemoveAll(tmpDir)

	// The manifest comes first so an unverifiable archive is never downloaded
	manifest, err := m.fetcher.FetchBytes(ctx, selection.Checksum.DownloadURL)
	if err != nil {
		return Result{}, err
	}
	expected, ok := checksums.Parse(string(manifest)).Lookup(selection.Archive.Name)
	if !ok {
		return Result{}, &asset.NoPublishedChecksumError{
			Archive:  selection.Archive.Name,
			Checksum: selection.Checksum.Name,
		}
	}

	logger.Infof("Downloading %s", selection.Archive.Name)
	archivePath, err := m.fetcher.Download(ctx, selection.Archive.DownloadURL, tmpDir)
	if err != nil {
		return Result{}, err
	}

	if err := verify.VerifyFile(archivePath, selection.Archive.Name, expected); err != nil {
		return Result{}, err
	}
	logger.Debug("checksum verified")

	extracted, err := archive.ExtractBinary(archivePath, selection.Format, filepath.Base(binaryPath), filepath.Join(tmpDir, "bin"))
	if err != nil {
		return Result{}, err
	}

	meta := install.Metadata{
		Version:           release.Tag,
		Target:            triple,
		ReleaseAPIBaseURL: ref.APIBaseURL,
	}
	if err := install.Commit(extracted, binaryPath, meta); err != nil {
		return Result{}, err
	}

	logger.Infof("Installed %s %s to %s", kind.ToolName(), release.Tag, binaryPath)
	return Result{Path: binaryPath, Version: release.Tag}, nil
}

// ResolvePath returns the binary to run for kind. An explicit path is used
// as is. Otherwise the binary is installed or updated when auto download is
// enabled, and an existing managed install is used when it is not.
func (m *Manager) ResolvePath(ctx context.Context, kind Kind, settings config.Settings) (string, error) {
	if settings.ExplicitPath != "" {
		if _, err := os.Stat(settings.ExplicitPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrExplicitPathMissing, settings.ExplicitPath)
		}
		return settings.ExplicitPath, nil
	}

	if settings.AutoDownload {
		res, err := m.InstallOrUpdate(ctx, kind, settings)
		if err != nil {
			return "", err
		}
		return res.Path, nil
	}

	binaryPath := m.BinaryPath(kind)
	if install.Lookup(binaryPath) != nil {
		return binaryPath, nil
	}
	return "", errors.Wrapf(ErrNotInstalled, "%s", kind.ToolName())
}

// Installed returns the metadata of the managed binary for kind, or nil when
// it is not installed.
func (m *Manager) Installed(kind Kind) *install.Metadata {
	return install.Lookup(m.BinaryPath(kind))
}
