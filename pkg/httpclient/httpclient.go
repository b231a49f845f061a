// Package httpclient provides the HTTP client used for every release host
// request, enforcing a host-scoped credential policy.
package httpclient

import (
	"context"
	"net/http"
	"os"
	"strings"
)

const (
	// PublicTokenEnv holds a credential for the public GitHub host only.
	PublicTokenEnv = "GITHUB_TOKEN"
	// EnterpriseTokenEnv holds a credential for the configured self-hosted
	// release host. PublicTokenEnv is never replayed elsewhere.
	EnterpriseTokenEnv = "NOVA_GITHUB_ENTERPRISE_TOKEN"
)

type enterpriseHostKey struct{}

// WithEnterpriseHost returns a copy of ctx under which EnterpriseTokenEnv may
// be sent to host. Requests to any other non-public host go out without a
// credential.
func WithEnterpriseHost(ctx context.Context, host string) context.Context {
	return context.WithValue(ctx, enterpriseHostKey{}, normalizeHost(host))
}

// EnterpriseHost returns the host set by WithEnterpriseHost, or "".
func EnterpriseHost(ctx context.Context) string {
	host, _ := ctx.Value(enterpriseHostKey{}).(string)
	return host
}

// NewClient creates an HTTP client whose transport authorizes requests
// according to TokenFor. The client has no overall timeout; downloads are
// bounded by the caller's context.
func NewClient() *http.Client {
	return &http.Client{
		Transport: NewTransport(http.DefaultTransport),
	}
}

// NewTransport wraps base with the authorization policy.
func NewTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{Base: base}
}

// authTransport is a RoundTripper that attaches bearer tokens per host.
type authTransport struct {
	Base http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	req2 := req.Clone(req.Context())
	Authorize(req2)
	return t.Base.RoundTrip(req2)
}

// Authorize sets the Authorization header on req when a credential applies
// to its host. A redirect hop that changes host never carries a credential,
// and any header inherited from the previous hop is dropped.
func Authorize(req *http.Request) {
	if req.URL == nil {
		return
	}
	host := req.URL.Hostname()
	if isCrossHostRedirect(req) {
		req.Header.Del("Authorization")
		return
	}
	if token := TokenFor(req.Context(), host); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func isCrossHostRedirect(req *http.Request) bool {
	if req.Response == nil || req.Response.Request == nil || req.Response.Request.URL == nil {
		return false
	}
	return normalizeHost(req.Response.Request.URL.Hostname()) != normalizeHost(req.URL.Hostname())
}

// TokenFor returns the credential that may be sent to host, or "". The
// enterprise credential only applies to the host recorded in ctx by
// WithEnterpriseHost.
func TokenFor(ctx context.Context, host string) string {
	if host == "" {
		return ""
	}
	if IsPublicHost(host) {
		return strings.TrimSpace(os.Getenv(PublicTokenEnv))
	}
	allowed := EnterpriseHost(ctx)
	if allowed == "" || allowed != normalizeHost(host) {
		return ""
	}
	return strings.TrimSpace(os.Getenv(EnterpriseTokenEnv))
}

// IsPublicHost reports whether host is github.com or one of its subdomains
// (api.github.com, uploads.github.com). The match is exact on labels so that
// hosts like github.com.example.org do not qualify.
func IsPublicHost(host string) bool {
	host = normalizeHost(host)
	return host == "github.com" || strings.HasSuffix(host, ".github.com")
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSuffix(host, "."))
}
