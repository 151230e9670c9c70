package audit

import (
	"net"
	"net/http"
	"strings"
)

// Actor identifies who performed an operation.
type Actor struct {
	ID            string
	Name          string // display form, stored verbatim in records
	Authenticated bool
}

// OperationContext carries the acting identity, tenant, and network origin of
// one operation. It is built by the HTTP layer (or SystemContext for
// background flows) and passed explicitly to every interceptor entry point.
// The pipeline never reads ambient or thread-local state, and never mutates
// the context it is given.
type OperationContext struct {
	Actor      *Actor
	OrgID      string
	RemoteAddr string
}

// SystemContext is the operation context of system-initiated flows: no actor,
// no tenant, no network origin. The generic mutation path treats it as
// unauditable; the password and login paths apply their own fallbacks.
func SystemContext() OperationContext {
	return OperationContext{}
}

// ActorName returns the actor's display name and whether the operation has an
// authenticated actor at all. The generic and relation paths must no-op when
// ok is false.
func (op OperationContext) ActorName() (name string, ok bool) {
	if op.Actor == nil || !op.Actor.Authenticated {
		return "", false
	}
	return op.Actor.Name, true
}

// ContextFromRequest builds an OperationContext from an inbound request and
// the identity the auth middleware resolved (nil when unauthenticated).
func ContextFromRequest(r *http.Request, actor *Actor, orgID string) OperationContext {
	return OperationContext{
		Actor:      actor,
		OrgID:      orgID,
		RemoteAddr: ClientIP(r),
	}
}

// ClientIP extracts the originating client address from proxy headers,
// best-effort: the first X-Forwarded-For hop, then X-Real-IP, then the
// transport peer. Returns "" when nothing parseable is present.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		if ip := net.ParseIP(real); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if ip := net.ParseIP(r.RemoteAddr); ip != nil {
			return ip.String()
		}
		return ""
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
