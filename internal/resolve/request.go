package resolve

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrMalformedRequest is returned when the original request URL cannot be
// reconstructed from the forward-auth request.
var ErrMalformedRequest = errors.New("malformed request description")

// Description is the decoded view of the request being decided: the original
// URL the client asked the ingress for, plus the headers and cookies the
// ingress copied onto the forward-auth subrequest.
type Description struct {
	// URL is the reconstructed original request URL.
	URL *url.URL

	// Header holds the original request headers.
	Header http.Header

	cookies map[string]string
}

// Describe reconstructs the original request from a forward-auth subrequest.
// Ingress controllers disagree on how they communicate the original URL, so
// several conventions are tried in order: an explicit `orig` query parameter
// on the subrequest, then the X-Original-URL, X-Auth-Request-Redirect and
// X-Original-URI headers. The URI variant carries no host, which is then
// taken from X-Original-Host / X-Forwarded-Host and X-Forwarded-Proto.
func Describe(r *http.Request) (*Description, error) {
	raw := r.URL.Query().Get("orig")
	if raw == "" {
		raw = r.Header.Get("X-Original-URL")
	}
	if raw == "" {
		raw = r.Header.Get("X-Auth-Request-Redirect")
	}
	if raw == "" {
		if uri := r.Header.Get("X-Original-URI"); uri != "" {
			proto := r.Header.Get("X-Forwarded-Proto")
			if proto == "" {
				proto = "https"
			}
			host := r.Header.Get("X-Original-Host")
			if host == "" {
				host = r.Header.Get("X-Forwarded-Host")
			}
			if host == "" {
				host = r.Host
			}
			raw = fmt.Sprintf("%s://%s%s", proto, host, uri)
		}
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: no original URL conveyed", ErrMalformedRequest)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	cookies := map[string]string{}
	for _, c := range r.Cookies() {
		if _, ok := cookies[c.Name]; !ok {
			cookies[c.Name] = c.Value
		}
	}

	return &Description{
		URL:     u,
		Header:  r.Header,
		cookies: cookies,
	}, nil
}

// Cookie returns the named cookie value, or "" when absent.
func (d *Description) Cookie(name string) string {
	return d.cookies[name]
}

// Query returns the named original-URL query parameter, or "".
func (d *Description) Query(name string) string {
	return d.URL.Query().Get(name)
}

// Path returns the original request path.
func (d *Description) Path() string {
	return d.URL.Path
}

// SameHost reports whether target points at the same host as the original
// request (or carries no host at all, i.e. is a relative URL).
func (d *Description) SameHost(target *url.URL) bool {
	return target.Host == "" || strings.EqualFold(target.Host, d.URL.Host)
}
