// Package resolve turns a version request and release channel into one
// concrete release of the repository.
package resolve

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/apex/log"
	"github.com/google/go-github/v60/github"
	"github.com/nova-ide/nova-install/pkg/httpclient"
	"github.com/nova-ide/nova-install/pkg/repository"
	"github.com/pkg/errors"
)

// Latest requests the newest release eligible under the channel.
const Latest = "latest"

// ListPageSize is the number of releases inspected for the prerelease channel.
const ListPageSize = 20

// Channel governs which releases are eligible for "latest".
type Channel string

const (
	// ChannelStable excludes prereleases.
	ChannelStable Channel = "stable"
	// ChannelPrerelease includes prereleases.
	ChannelPrerelease Channel = "prerelease"
)

// ParseChannel validates a channel name. Empty means stable.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case "", ChannelStable:
		return ChannelStable, nil
	case ChannelPrerelease:
		return ChannelPrerelease, nil
	default:
		return "", fmt.Errorf("unknown release channel %q (want %s or %s)", s, ChannelStable, ChannelPrerelease)
	}
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name        string
	DownloadURL string
}

// Release is the resolved release descriptor.
type Release struct {
	Tag        string
	Prerelease bool
	Assets     []Asset
}

// ReleaseNotFoundError is returned when an explicit tag does not exist.
type ReleaseNotFoundError struct {
	Repo string
	Tag  string
}

func (e *ReleaseNotFoundError) Error() string {
	return fmt.Sprintf("release %s not found in %s", e.Tag, e.Repo)
}

// NoStableReleasesError is returned when the stable channel has nothing to offer.
type NoStableReleasesError struct {
	Repo string
}

func (e *NoStableReleasesError) Error() string {
	return fmt.Sprintf("No stable releases found for %s; switch the release channel to %q to install a prerelease build", e.Repo, ChannelPrerelease)
}

// NoReleasesError is returned when the prerelease channel finds no candidate.
type NoReleasesError struct {
	Repo string
}

func (e *NoReleasesError) Error() string {
	return fmt.Sprintf("no releases found for %s", e.Repo)
}

// Resolver queries the release host. The zero value is not usable; use
// NewResolver.
type Resolver struct {
	httpClient *http.Client
}

// NewResolver creates a Resolver. A nil client uses httpclient.NewClient(),
// which applies the host-scoped credential policy.
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = httpclient.NewClient()
	}
	return &Resolver{httpClient: client}
}

// Resolve returns the release matching version ("latest" or a tag) under
// channel. The enterprise credential is scoped to ref's host.
func (r *Resolver) Resolve(ctx context.Context, ref repository.Reference, channel Channel, version string) (*Release, error) {
	ctx = httpclient.WithEnterpriseHost(ctx, ref.Host())
	client, err := r.clientFor(ref)
	if err != nil {
		return nil, err
	}

	if version != "" && version != Latest {
		return r.byTag(ctx, client, ref, version)
	}
	if channel == ChannelPrerelease {
		return r.newest(ctx, client, ref)
	}
	return r.latestStable(ctx, client, ref)
}

func (r *Resolver) clientFor(ref repository.Reference) (*github.Client, error) {
	base, err := url.Parse(ref.APIRoot())
	if err != nil {
		return nil, errors.Wrapf(err, "invalid API base URL %s", ref.APIBaseURL)
	}
	client := github.NewClient(r.httpClient)
	client.BaseURL = base
	return client, nil
}

func (r *Resolver) byTag(ctx context.Context, client *github.Client, ref repository.Reference, tag string) (*Release, error) {
	log.Debugf("Fetching release %s of %s", tag, ref)
	release, resp, err := client.Repositories.GetReleaseByTag(ctx, ref.Owner, ref.Repo, tag)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, &ReleaseNotFoundError{Repo: ref.String(), Tag: tag}
		}
		return nil, errors.Wrapf(err, "failed to fetch release %s", tag)
	}
	return convert(release)
}

func (r *Resolver) latestStable(ctx context.Context, client *github.Client, ref repository.Reference) (*Release, error) {
	log.Debugf("Fetching latest stable release of %s", ref)
	release, resp, err := client.Repositories.GetLatestRelease(ctx, ref.Owner, ref.Repo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, &NoStableReleasesError{Repo: ref.String()}
		}
		return nil, errors.Wrap(err, "failed to fetch latest release")
	}
	return convert(release)
}

// newest lists one page of releases, newest first as ordered by the host,
// and returns the first one that is not a draft.
func (r *Resolver) newest(ctx context.Context, client *github.Client, ref repository.Reference) (*Release, error) {
	log.Debugf("Listing recent releases of %s", ref)
	releases, resp, err := client.Repositories.ListReleases(ctx, ref.Owner, ref.Repo, &github.ListOptions{
		PerPage: ListPageSize,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, &NoReleasesError{Repo: ref.String()}
		}
		return nil, errors.Wrap(err, "failed to fetch releases")
	}

	for _, release := range releases {
		if release == nil || release.GetDraft() || release.GetTagName() == "" {
			continue
		}
		return convert(release)
	}
	return nil, &NoReleasesError{Repo: ref.String()}
}

func convert(release *github.RepositoryRelease) (*Release, error) {
	if release == nil || release.GetTagName() == "" {
		return nil, fmt.Errorf("release host returned a release without a tag name")
	}

	out := &Release{
		Tag:        release.GetTagName(),
		Prerelease: release.GetPrerelease(),
		Assets:     make([]Asset, 0, len(release.Assets)),
	}
	for _, a := range release.Assets {
		if a == nil {
			continue
		}
		out.Assets = append(out.Assets, Asset{
			Name:        a.GetName(),
			DownloadURL: a.GetBrowserDownloadURL(),
		})
	}
	log.Debugf("Resolved release %s with %d assets", out.Tag, len(out.Assets))
	return out, nil
}
