package audit

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP_XForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1, 10.0.0.2")
	r.RemoteAddr = "10.0.0.2:443"

	if got := ClientIP(r); got != "203.0.113.5" {
		t.Errorf("ClientIP = %q, want first forwarded hop", got)
	}
}

func TestClientIP_XRealIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "203.0.113.9")

	if got := ClientIP(r); got != "203.0.113.9" {
		t.Errorf("ClientIP = %q, want X-Real-IP value", got)
	}
}

func TestClientIP_RemoteAddrFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.4:39012"

	if got := ClientIP(r); got != "198.51.100.4" {
		t.Errorf("ClientIP = %q, want transport peer", got)
	}
}

func TestClientIP_GarbageHeaderIgnored(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "not-an-ip")
	r.RemoteAddr = "198.51.100.4:39012"

	if got := ClientIP(r); got != "198.51.100.4" {
		t.Errorf("ClientIP = %q, unparseable header must fall through", got)
	}
}

func TestClientIP_NothingUsable(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = ""

	if got := ClientIP(r); got != "" {
		t.Errorf("ClientIP = %q, want empty", got)
	}
}

func TestActorName(t *testing.T) {
	if _, ok := SystemContext().ActorName(); ok {
		t.Error("system context must have no actor")
	}

	op := OperationContext{Actor: &Actor{Name: "ghost"}}
	if _, ok := op.ActorName(); ok {
		t.Error("unauthenticated actor must not resolve")
	}

	op = authedCtx("bob")
	name, ok := op.ActorName()
	if !ok || name != "bob" {
		t.Errorf("ActorName = %q, %v", name, ok)
	}
}

func TestContextFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/users", nil)
	r.RemoteAddr = "198.51.100.4:39012"

	op := ContextFromRequest(r, &Actor{ID: "u1", Name: "bob", Authenticated: true}, "org-1")
	if op.RemoteAddr != "198.51.100.4" || op.OrgID != "org-1" {
		t.Errorf("op = %+v", op)
	}
	if name, ok := op.ActorName(); !ok || name != "bob" {
		t.Errorf("actor = %q, %v", name, ok)
	}
}
