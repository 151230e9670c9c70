package audit

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/bastionhq/bastion-audit/internal/db/models"
)

type fakeLoginStore struct {
	logs []*models.UserLoginLog
	err  error
}

func (f *fakeLoginStore) CreateLoginLog(_ context.Context, log *models.UserLoginLog) error {
	if f.err != nil {
		return f.err
	}
	f.logs = append(f.logs, log)
	return nil
}

type fakeChecker struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func (f *fakeChecker) Check(_ context.Context, username, ip string) {
	f.mu.Lock()
	f.calls = append(f.calls, username+"@"+ip)
	f.mu.Unlock()
	close(f.done)
}

func init() {
	InitBackendLabels(nil)
}

func TestOnAuthSuccess(t *testing.T) {
	store := &fakeLoginStore{}
	rec := NewLoginRecorder(store, nil)

	r := httptest.NewRequest("POST", "/core/auth/login/", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.RemoteAddr = "192.0.2.7:51000"

	user := &models.User{Username: "alice", Source: "local", MFAEnabled: true}
	if err := rec.OnAuthSuccess(context.Background(), user, r, ""); err != nil {
		t.Fatalf("OnAuthSuccess: %v", err)
	}

	if len(store.logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(store.logs))
	}
	got := store.logs[0]
	if !got.Status {
		t.Error("status = false, want true")
	}
	if got.MFA != 1 {
		t.Errorf("mfa = %d, want 1", got.MFA)
	}
	if got.Type != models.LoginTypeWeb {
		t.Errorf("type = %q, want W", got.Type)
	}
	if got.Backend != "Password" {
		t.Errorf("backend = %q, want Password", got.Backend)
	}
	if got.IP != "192.0.2.7" {
		t.Errorf("ip = %q, want 192.0.2.7", got.IP)
	}
	if got.Reason != "" {
		t.Errorf("reason = %q, want empty on success", got.Reason)
	}
}

func TestOnAuthSuccess_APILoginTypeHeader(t *testing.T) {
	store := &fakeLoginStore{}
	rec := NewLoginRecorder(store, nil)

	r := httptest.NewRequest("POST", "/api/v1/auth/tokens/", nil)
	r.Header.Set(HeaderLoginType, "T")

	user := &models.User{Username: "alice", Source: "local"}
	if err := rec.OnAuthSuccess(context.Background(), user, r, ""); err != nil {
		t.Fatalf("OnAuthSuccess: %v", err)
	}
	if store.logs[0].Type != "T" {
		t.Errorf("type = %q, want T from header", store.logs[0].Type)
	}
}

func TestOnAuthSuccess_APIWithoutHeaderIsUnknown(t *testing.T) {
	store := &fakeLoginStore{}
	rec := NewLoginRecorder(store, nil)

	r := httptest.NewRequest("POST", "/api/v1/auth/tokens/", nil)
	user := &models.User{Username: "alice", Source: "local"}
	if err := rec.OnAuthSuccess(context.Background(), user, r, ""); err != nil {
		t.Fatalf("OnAuthSuccess: %v", err)
	}
	if store.logs[0].Type != models.LoginTypeUnknown {
		t.Errorf("type = %q, want U", store.logs[0].Type)
	}
}

func TestOnAuthSuccess_ExplicitLoginTypeWins(t *testing.T) {
	store := &fakeLoginStore{}
	rec := NewLoginRecorder(store, nil)

	r := httptest.NewRequest("POST", "/api/v1/auth/tokens/", nil)
	r.Header.Set(HeaderLoginType, "T")

	user := &models.User{Username: "alice", Source: "local"}
	if err := rec.OnAuthSuccess(context.Background(), user, r, "W"); err != nil {
		t.Fatalf("OnAuthSuccess: %v", err)
	}
	if store.logs[0].Type != "W" {
		t.Errorf("type = %q, explicit argument must win", store.logs[0].Type)
	}
}

func TestOnAuthSuccess_FiresUnusualLoginCheck(t *testing.T) {
	store := &fakeLoginStore{}
	checker := &fakeChecker{done: make(chan struct{})}
	rec := NewLoginRecorder(store, checker)

	r := httptest.NewRequest("POST", "/core/auth/login/", nil)
	r.RemoteAddr = "192.0.2.7:51000"
	user := &models.User{Username: "alice", Source: "local"}
	if err := rec.OnAuthSuccess(context.Background(), user, r, ""); err != nil {
		t.Fatalf("OnAuthSuccess: %v", err)
	}

	<-checker.done
	checker.mu.Lock()
	defer checker.mu.Unlock()
	if len(checker.calls) != 1 || checker.calls[0] != "alice@192.0.2.7" {
		t.Errorf("checker calls = %v", checker.calls)
	}
}

func TestOnAuthFailed(t *testing.T) {
	store := &fakeLoginStore{}
	rec := NewLoginRecorder(store, nil)

	r := httptest.NewRequest("POST", "/core/auth/login/", nil)
	if err := rec.OnAuthFailed(context.Background(), "dave", r, "invalid credentials"); err != nil {
		t.Fatalf("OnAuthFailed: %v", err)
	}

	got := store.logs[0]
	if got.Status {
		t.Error("status = true, want false")
	}
	if got.Username != "dave" || got.Reason != "invalid credentials" {
		t.Errorf("record = %+v", got)
	}
}

func TestOnAuthFailed_ReasonTruncated(t *testing.T) {
	store := &fakeLoginStore{}
	rec := NewLoginRecorder(store, nil)

	long := strings.Repeat("r", 300)
	r := httptest.NewRequest("POST", "/core/auth/login/", nil)
	if err := rec.OnAuthFailed(context.Background(), "dave", r, long); err != nil {
		t.Fatalf("OnAuthFailed: %v", err)
	}

	got := store.logs[0].Reason
	if utf8.RuneCountInString(got) != models.LoginReasonMaxLen {
		t.Errorf("reason length = %d, want %d", utf8.RuneCountInString(got), models.LoginReasonMaxLen)
	}
	if got != long[:models.LoginReasonMaxLen] {
		t.Error("reason must be exactly the first 128 characters")
	}
}

func TestGenerate_UserAgentCapped(t *testing.T) {
	store := &fakeLoginStore{}
	rec := NewLoginRecorder(store, nil)

	r := httptest.NewRequest("POST", "/core/auth/login/", nil)
	r.Header.Set("User-Agent", strings.Repeat("u", 400))
	if err := rec.OnAuthFailed(context.Background(), "dave", r, ""); err != nil {
		t.Fatalf("OnAuthFailed: %v", err)
	}
	if got := len(store.logs[0].UserAgent); got != models.UserAgentMaxLen {
		t.Errorf("user agent length = %d, want %d", got, models.UserAgentMaxLen)
	}
}

func TestGenerate_NoClientIPFallsBack(t *testing.T) {
	store := &fakeLoginStore{}
	rec := NewLoginRecorder(store, nil)

	r := httptest.NewRequest("POST", "/core/auth/login/", nil)
	r.RemoteAddr = ""
	if err := rec.OnAuthFailed(context.Background(), "dave", r, ""); err != nil {
		t.Fatalf("OnAuthFailed: %v", err)
	}
	if store.logs[0].IP != "0.0.0.0" {
		t.Errorf("ip = %q, want 0.0.0.0", store.logs[0].IP)
	}
}

func TestBackendLabel_Unknown(t *testing.T) {
	if got := BackendLabel("carrier-pigeon"); got != "" {
		t.Errorf("BackendLabel = %q, want empty for unknown backend", got)
	}
}
