package audit

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/bastionhq/bastion-audit/internal/db/models"
	"github.com/bastionhq/bastion-audit/internal/safego"
	"github.com/bastionhq/bastion-audit/internal/telemetry"
)

// HeaderLoginType lets API clients declare the channel they authenticate
// through. Only honored on API-style requests.
const HeaderLoginType = "X-JMS-LOGIN-TYPE"

// Auth-backend labels are a process-wide mapping from backend identifier to
// the human label stored in login records. Labels are fixed English strings
// regardless of the caller's locale so stored text stays comparable.
//
// InitBackendLabels must be called once during startup, before the first
// login is recorded; the sync.Once barrier makes the mapping safe for
// concurrent readers afterwards.
var (
	backendLabels     map[string]string
	backendLabelsOnce sync.Once
)

var defaultBackendLabels = map[string]string{
	"local":  "Password",
	"ldap":   "LDAP",
	"pubkey": "SSH Key",
	"sso":    "SSO",
	"token":  "Auth Token",
	"oidc":   "OpenID Connect",
	"saml":   "SAML",
}

// InitBackendLabels installs the backend-label mapping, merging extra entries
// over the built-in defaults. Only the first call has any effect.
func InitBackendLabels(extra map[string]string) {
	backendLabelsOnce.Do(func() {
		m := make(map[string]string, len(defaultBackendLabels)+len(extra))
		for k, v := range defaultBackendLabels {
			m[k] = v
		}
		for k, v := range extra {
			m[k] = v
		}
		backendLabels = m
	})
}

// BackendLabel resolves a backend identifier to its stored label, or "" when
// unknown or before initialization.
func BackendLabel(backend string) string {
	if backendLabels == nil {
		return ""
	}
	return backendLabels[backend]
}

// LoginStore persists login records.
type LoginStore interface {
	CreateLoginLog(ctx context.Context, log *models.UserLoginLog) error
}

// UnusualLoginChecker flags logins from an unexpected network. Check is
// invoked fire-and-forget on every successful login; implementations own
// their error handling, nothing they do can affect the login record.
type UnusualLoginChecker interface {
	Check(ctx context.Context, username, ip string)
}

// LoginRecorder writes one UserLoginLog per authentication attempt. It is the
// dedicated write path for auth events; they never travel through the
// generic mutation hooks, so recording a login cannot re-trigger auditing.
type LoginRecorder struct {
	store   LoginStore
	checker UnusualLoginChecker // optional
}

// NewLoginRecorder creates a LoginRecorder. checker may be nil to disable the
// unusual-location check.
func NewLoginRecorder(store LoginStore, checker UnusualLoginChecker) *LoginRecorder {
	return &LoginRecorder{store: store, checker: checker}
}

// OnAuthSuccess records a successful authentication. loginType may be empty,
// in which case it is derived from the request (see resolveLoginType).
func (l *LoginRecorder) OnAuthSuccess(ctx context.Context, user *models.User, r *http.Request, loginType string) error {
	if l.checker != nil {
		username, ip := user.Username, loginIP(r)
		safego.Go("unusual-login-check", func() {
			l.checker.Check(context.Background(), username, ip)
		})
	}

	log := l.generate(user.Username, user.Source, r, loginType)
	log.Status = true
	if user.MFAEnabled {
		log.MFA = 1
	}
	if err := l.store.CreateLoginLog(ctx, log); err != nil {
		return err
	}
	telemetry.LoginEventsTotal.WithLabelValues("success").Inc()
	return nil
}

// OnAuthFailed records a failed authentication attempt. reason defaults to ""
// and is capped at the reason column width.
func (l *LoginRecorder) OnAuthFailed(ctx context.Context, username string, r *http.Request, reason string) error {
	log := l.generate(username, "", r, "")
	log.Status = false
	log.Reason = Truncate(reason, models.LoginReasonMaxLen)
	if err := l.store.CreateLoginLog(ctx, log); err != nil {
		return err
	}
	telemetry.LoginEventsTotal.WithLabelValues("failed").Inc()
	return nil
}

// generate assembles the record fields shared by the success and failure
// paths.
func (l *LoginRecorder) generate(username, backend string, r *http.Request, loginType string) *models.UserLoginLog {
	var userAgent string
	if r != nil {
		userAgent = r.UserAgent()
	}
	return &models.UserLoginLog{
		Username:  username,
		IP:        loginIP(r),
		Type:      resolveLoginType(r, loginType),
		UserAgent: Truncate(userAgent, models.UserAgentMaxLen),
		Backend:   BackendLabel(backend),
	}
}

// loginIP is ClientIP with the login-record fallback.
func loginIP(r *http.Request) string {
	if ip := ClientIP(r); ip != "" {
		return ip
	}
	return "0.0.0.0"
}

// resolveLoginType picks the stored login type: the explicit argument wins;
// API-style requests may declare one via the X-JMS-LOGIN-TYPE header and
// otherwise record "U"; everything else is a web login.
func resolveLoginType(r *http.Request, loginType string) string {
	if loginType != "" {
		return loginType
	}
	if isAPIRequest(r) {
		if t := r.Header.Get(HeaderLoginType); t != "" {
			return t
		}
		return models.LoginTypeUnknown
	}
	return models.LoginTypeWeb
}

func isAPIRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
