package authn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bastionhq/bastion-audit/internal/audit"
	"github.com/bastionhq/bastion-audit/internal/db/models"
	"github.com/bastionhq/bastion-audit/internal/db/repositories"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("BST_JWT_SECRET", strings.Repeat("k", 32))
	audit.InitBackendLabels(nil)
	os.Exit(m.Run())
}

type memoryLoginStore struct {
	logs []*models.UserLoginLog
}

func (s *memoryLoginStore) CreateLoginLog(_ context.Context, log *models.UserLoginLog) error {
	s.logs = append(s.logs, log)
	return nil
}

type nopHooks struct{}

func (nopHooks) EntitySaved(context.Context, audit.OperationContext, audit.Entity, bool, []string) error {
	return nil
}
func (nopHooks) EntityDeleting(context.Context, audit.OperationContext, audit.Entity) error {
	return nil
}
func (nopHooks) RelationChanged(context.Context, audit.OperationContext, string, audit.RelationAction,
	audit.Entity, string, string, []string) error {
	return nil
}

type nopPasswordStore struct{}

func (nopPasswordStore) CreatePasswordChangeLog(context.Context, *models.PasswordChangeLog) error {
	return nil
}

func newLoginRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock, *memoryLoginStore) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	userRepo := repositories.NewUserRepository(
		sqlx.NewDb(mockDB, "postgres"), nopHooks{}, audit.NewPasswordRecorder(nopPasswordStore{}))
	loginStore := &memoryLoginStore{}
	handlers := NewHandlers(userRepo, audit.NewLoginRecorder(loginStore, nil), time.Hour)

	r := gin.New()
	r.POST("/api/v1/auth/login", handlers.LoginHandler())
	return r, mock, loginStore
}

func userRow(t *testing.T, password string) *sqlmock.Rows {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return sqlmock.NewRows([]string{"id", "username", "name", "password_hash", "source", "mfa_enabled"}).
		AddRow("u-1", "alice", "Alice", string(hash), "local", false)
}

func TestLoginSuccess(t *testing.T) {
	router, mock, loginStore := newLoginRouter(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM users WHERE username = $1")).
		WithArgs("alice").
		WillReturnRows(userRow(t, "s3cret!"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_login")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"alice","password":"s3cret!"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	require.Len(t, loginStore.logs, 1)
	log := loginStore.logs[0]
	assert.True(t, log.Status)
	assert.Equal(t, "alice", log.Username)
	assert.Equal(t, "203.0.113.7", log.IP)
	assert.Equal(t, "Password", log.Backend)
	// request path starts with /api/ and carries no explicit type
	assert.Equal(t, models.LoginTypeUnknown, log.Type)
}

func TestLoginWrongPassword(t *testing.T) {
	router, mock, loginStore := newLoginRouter(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM users WHERE username = $1")).
		WithArgs("alice").
		WillReturnRows(userRow(t, "s3cret!"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"alice","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.Len(t, loginStore.logs, 1)
	assert.False(t, loginStore.logs[0].Status)
	assert.Equal(t, "Invalid credentials", loginStore.logs[0].Reason)
}

func TestLoginUnknownUserStillRecorded(t *testing.T) {
	router, mock, loginStore := newLoginRouter(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM users WHERE username = $1")).
		WithArgs("ghost").
		WillReturnError(sqlmock.ErrCancelled)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"ghost","password":"anything"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.Len(t, loginStore.logs, 1)
	assert.Equal(t, "ghost", loginStore.logs[0].Username)
	assert.False(t, loginStore.logs[0].Status)
}

func TestLoginTypeHeaderHonored(t *testing.T) {
	router, mock, loginStore := newLoginRouter(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM users WHERE username = $1")).
		WithArgs("alice").
		WillReturnRows(userRow(t, "s3cret!"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_login")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"alice","password":"s3cret!"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(audit.HeaderLoginType, models.LoginTypeTerminal)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, loginStore.logs, 1)
	assert.Equal(t, models.LoginTypeTerminal, loginStore.logs[0].Type)
}
