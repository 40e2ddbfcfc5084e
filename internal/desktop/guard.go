// Package desktop detects whether a request originates from inside a
// remote-desktop pod and pins such sessions to the desktop's project.
package desktop

import (
	"context"
	"net"
	"net/http"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/client"

	"tregate/pkg/logging"

	desktopv1alpha1 "tregate/pkg/apis/desktop/v1alpha1"
)

// Context describes the desktop a request came from, when it came from one.
type Context struct {
	Project   string
	Instance  string
	LinuxUser string
}

// Guard matches request origin addresses against the user's running desktop
// instances.
type Guard struct {
	client    client.Client
	namespace string
}

// NewGuard creates a guard listing desktop instances from the given
// namespace.
func NewGuard(c client.Client, namespace string) *Guard {
	return &Guard{client: c, namespace: namespace}
}

// ClientIP extracts the originating client address. The gateway sits behind
// the ingress, so forwarded headers take precedence over the peer address:
// the first X-Forwarded-For entry is the original client, then X-Real-IP,
// then the connection peer.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Detect reports whether the request originates from one of the user's
// running desktop pods, by comparing the client address against pod IPs. A
// listing failure reads as "not a desktop": the guard only ever narrows
// access, so failing open here cannot grant anything.
func (g *Guard) Detect(ctx context.Context, r *http.Request, username string) (*Context, bool) {
	ip := ClientIP(r)
	if ip == "" || username == "" {
		return nil, false
	}

	list := &desktopv1alpha1.DesktopInstanceList{}
	if err := g.client.List(ctx, list, client.InNamespace(g.namespace)); err != nil {
		logging.Error("Desktop", err, "Failed to list desktop instances")
		return nil, false
	}

	for i := range list.Items {
		inst := &list.Items[i]
		if inst.Spec.User != username || !inst.IsRunning() {
			continue
		}
		if inst.Status.PodIP != "" && inst.Status.PodIP == ip {
			logging.Debug("Desktop", "Request from %s matches desktop %s (project %s)", ip, inst.Name, inst.Spec.Project)
			return &Context{
				Project:   inst.Spec.Project,
				Instance:  inst.Name,
				LinuxUser: inst.Status.LinuxUser,
			}, true
		}
	}
	return nil, false
}
