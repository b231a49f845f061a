// Package repository normalizes user supplied release repository references
// into an owner/repo pair and the REST API base URL that serves its releases.
package repository

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	// PublicHost is the public GitHub web host.
	PublicHost = "github.com"
	// PublicAPIHost is the API host that serves PublicHost repositories.
	PublicAPIHost = "api.github.com"
)

// ErrInvalidReference is returned when no owner/repo pair can be extracted.
var ErrInvalidReference = errors.New("invalid repository reference")

// Reference identifies a release repository and the API that serves it.
type Reference struct {
	Owner      string
	Repo       string
	APIBaseURL string
}

// String returns the owner/repo shorthand.
func (r Reference) String() string {
	return r.Owner + "/" + r.Repo
}

// IsPublic reports whether the reference points at the public host.
func (r Reference) IsPublic() bool {
	u, err := url.Parse(r.APIBaseURL)
	return err == nil && u.Hostname() == PublicAPIHost
}

// Host returns the hostname serving the release API.
func (r Reference) Host() string {
	u, err := url.Parse(r.APIBaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// APIRoot returns the API root (with a trailing slash) that APIBaseURL
// hangs off, e.g. https://api.github.com/ or https://ghe.corp/api/v3/.
func (r Reference) APIRoot() string {
	suffix := "repos/" + r.Owner + "/" + r.Repo
	root := strings.TrimSuffix(strings.TrimSuffix(r.APIBaseURL, "/"), suffix)
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root
}

// Parse accepts any of
//
//	owner/repo
//	owner/repo/
//	host/owner/repo
//	git@host:owner/repo.git
//	https://host/owner/repo[.git]
//	https://api.github.com/repos/owner/repo
//	https://host/api/v3/repos/owner/repo
//
// and returns the normalized Reference. github.com is the public host; every
// other host is treated as an enterprise instance serving /api/v3.
func Parse(input string) (Reference, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return Reference{}, fmt.Errorf("%w: empty value", ErrInvalidReference)
	}

	scheme := "https"
	var host, path string

	switch {
	case strings.HasPrefix(s, "git@"):
		rest := strings.TrimPrefix(s, "git@")
		h, p, ok := strings.Cut(rest, ":")
		if !ok {
			return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, input)
		}
		host, path = h, p
	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, input)
		}
		if u.Scheme == "http" {
			scheme = "http"
		}
		host, path = u.Host, u.Path
	default:
		segments := splitPath(s)
		if len(segments) == 3 && strings.Contains(segments[0], ".") {
			host, path = segments[0], strings.Join(segments[1:], "/")
		} else {
			host, path = PublicHost, s
		}
	}

	host = strings.ToLower(host)
	segments := splitPath(path)

	switch {
	case host == PublicAPIHost:
		segments = trimAPIPrefix(segments, "repos")
		host = PublicHost
	case len(segments) >= 4 && segments[0] == "api" && segments[1] == "v3" && segments[2] == "repos":
		segments = segments[3:]
	}

	if len(segments) < 2 {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, input)
	}
	owner := segments[0]
	repo := strings.TrimSuffix(segments[1], ".git")
	if !validName(owner) || !validName(repo) {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, input)
	}
	// Anything past owner/repo is only tolerated on web URLs (e.g. /releases).
	if len(segments) > 2 && !strings.Contains(s, "://") {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, input)
	}

	ref := Reference{Owner: owner, Repo: repo}
	if host == PublicHost || host == "www."+PublicHost {
		ref.APIBaseURL = fmt.Sprintf("https://%s/repos/%s/%s", PublicAPIHost, owner, repo)
	} else {
		ref.APIBaseURL = fmt.Sprintf("%s://%s/api/v3/repos/%s/%s", scheme, host, owner, repo)
	}
	return ref, nil
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func trimAPIPrefix(segments []string, prefix string) []string {
	if len(segments) > 0 && segments[0] == prefix {
		return segments[1:]
	}
	return nil
}

func validName(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
