package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/audit"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/sessions"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/tokens"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/users"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/metrics"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	router   *gin.Engine
	users    *users.Service
	sessions *sessions.Service
	audit    *audit.MemoryRecorder
	store    *fakeObjectStore
}

type fakeObjectStore struct {
	keys []string
}

func (f *fakeObjectStore) UploadFile(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	_, err := io.Copy(io.Discard, r)
	f.keys = append(f.keys, key)
	return err
}

func (f *fakeObjectStore) GetPresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://minio.test/" + key, nil
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	usvc := users.NewService(users.NewMemoryRepository(), users.NewHasher(bcrypt.MinCost))
	rec := audit.NewMemoryRecorder()
	ssvc := sessions.NewService(
		sessions.NewMemoryRepository(),
		tokens.NewMinter("handler-test-secret-0123456789abcdef", "dental360-auth"),
		usvc,
		sessions.Config{AccessTTL: 15 * time.Minute, RefreshTTL: 7 * 24 * time.Hour, RememberMeMultiplier: 4},
		sessions.WithAudit(rec),
	)
	store := &fakeObjectStore{}
	r := gin.New()
	Mount(r, Deps{Users: usvc, Sessions: ssvc, Audit: rec, Exporter: audit.NewExporter(rec, store)})

	ctx := context.Background()
	_, err := usvc.Register(ctx, "alice", "alice-password", models.RoleStaff)
	require.NoError(t, err)
	_, err = usvc.Register(ctx, "root", "root-password", models.RoleAdmin)
	require.NoError(t, err)
	return &testServer{router: r, users: usvc, sessions: ssvc, audit: rec, store: store}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var out map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (s *testServer) login(t *testing.T, username, password string) SessionResponse {
	t.Helper()
	w, _ := s.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestLogin_Success(t *testing.T) {
	s := newTestServer(t)
	resp := s.login(t, "Alice", "alice-password")

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "alice", resp.Identity.Username)
	assert.Equal(t, models.RoleStaff, resp.Identity.Role)
	assert.True(t, resp.ExpiresAt.Before(resp.RefreshExpiresAt))
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t)

	w1, body1 := s.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "alice", "password": "wrong-password"})
	w2, body2 := s.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "ghost", "password": "whatever"})

	require.Equal(t, http.StatusUnauthorized, w1.Code)
	require.Equal(t, http.StatusUnauthorized, w2.Code)
	require.Equal(t, body1, body2)
	require.Equal(t, models.CodeInvalidCredentials, body1["code"])
	require.Equal(t, msgInvalidCredentials, body1["error"])
	require.Contains(t, s.audit.Types(), audit.EventLoginFailed)
}

func TestLogin_BadRequest(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "alice"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_RememberMe(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "alice", "password": "alice-password", "rememberMe": true})
	require.Equal(t, http.StatusOK, w.Code)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.RefreshExpiresAt.After(time.Now().Add(27*24*time.Hour)))
}

func TestLogin_RunsLoginMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	called := false
	Mount(r, Deps{LoginMiddleware: []gin.HandlerFunc{func(c *gin.Context) {
		called = true
		c.AbortWithStatus(http.StatusTooManyRequests)
	}}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	require.True(t, called)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAuthenticatedMiddlewareSeesPrincipal(t *testing.T) {
	s := newTestServer(t)
	var seen []int64
	record := func(c *gin.Context) {
		if p, ok := middleware.GetPrincipal(c); ok {
			seen = append(seen, p.IdentityID)
		}
		c.Next()
	}
	r := gin.New()
	Mount(r, Deps{Users: s.users, Sessions: s.sessions, Audit: s.audit, Authenticated: []gin.HandlerFunc{record}})
	s.router = r

	alice := s.login(t, "alice", "alice-password")
	root := s.login(t, "root", "root-password")

	w, _ := s.do(t, http.MethodGet, "/auth/session", alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodGet, "/admin/identities/1", root.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodGet, "/auth/session", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	require.Equal(t, []int64{alice.Identity.ID, root.Identity.ID}, seen)
}

func TestSessionEndpoint(t *testing.T) {
	s := newTestServer(t)
	resp := s.login(t, "alice", "alice-password")

	w, body := s.do(t, http.MethodGet, "/auth/session", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	identity := body["identity"].(map[string]interface{})
	require.Equal(t, "alice", identity["username"])
	require.Equal(t, "staff", identity["role"])
	require.NotEmpty(t, body["sessionId"])

	w, body = s.do(t, http.MethodGet, "/auth/session", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, models.CodeTokenNotFound, body["code"])
}

func TestRefresh_RotatesTokens(t *testing.T) {
	s := newTestServer(t)
	first := s.login(t, "alice", "alice-password")

	w, _ := s.do(t, http.MethodPost, "/auth/refresh", "", gin.H{"refreshToken": first.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	var second SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	require.NotEqual(t, first.AccessToken, second.AccessToken)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	w, body := s.do(t, http.MethodPost, "/auth/refresh", "", gin.H{"refreshToken": first.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, models.CodeInvalidRefreshToken, body["code"])

	w, body = s.do(t, http.MethodGet, "/auth/session", first.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, models.CodeTokenRevoked, body["code"])

	w, _ = s.do(t, http.MethodPost, "/auth/refresh", "", gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)
	resp := s.login(t, "alice", "alice-password")

	w, _ := s.do(t, http.MethodPost, "/auth/logout", resp.AccessToken, gin.H{"refreshToken": resp.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := s.do(t, http.MethodGet, "/auth/session", resp.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, models.CodeTokenRevoked, body["code"])

	w, _ = s.do(t, http.MethodPost, "/auth/refresh", "", gin.H{"refreshToken": resp.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// logging out twice is fine
	w, _ = s.do(t, http.MethodPost, "/auth/logout", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/auth/logout", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_CountsOnlyRevokedSessions(t *testing.T) {
	s := newTestServer(t)
	resp := s.login(t, "alice", "alice-password")
	counter := metrics.SessionsRevoked.WithLabelValues(sessions.ReasonLogout)

	before := testutil.ToFloat64(counter)
	w, _ := s.do(t, http.MethodPost, "/auth/logout", resp.AccessToken, gin.H{"refreshToken": resp.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(counter)-before)

	w, _ = s.do(t, http.MethodPost, "/auth/logout", resp.AccessToken, gin.H{"refreshToken": resp.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/auth/logout", "not-a-token", gin.H{"refreshToken": "unknown"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(counter)-before)
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	s := newTestServer(t)
	staff := s.login(t, "alice", "alice-password")

	w, body := s.do(t, http.MethodPost, "/admin/identities", staff.AccessToken, gin.H{"username": "bob", "password": "bob-password", "role": "user"})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, models.CodeForbidden, body["code"])

	w, _ = s.do(t, http.MethodPost, "/admin/identities", "", gin.H{})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_IdentityLifecycle(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "root", "root-password")

	w, body := s.do(t, http.MethodPost, "/admin/identities", admin.AccessToken, gin.H{"username": "Bob", "password": "bob-password", "role": "User"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, "bob", body["username"])
	id := int64(body["id"].(float64))
	path := "/admin/identities/" + jsonInt(id)

	w, _ = s.do(t, http.MethodPost, "/admin/identities", admin.AccessToken, gin.H{"username": "bob", "password": "bob-password", "role": "user"})
	require.Equal(t, http.StatusConflict, w.Code)
	w, _ = s.do(t, http.MethodPost, "/admin/identities", admin.AccessToken, gin.H{"username": "eve", "password": "eve-password", "role": "root"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	bob := s.login(t, "bob", "bob-password")

	// role change applies on refresh, not to the live session
	w, _ = s.do(t, http.MethodPatch, path+"/role", admin.AccessToken, gin.H{"role": "manager"})
	require.Equal(t, http.StatusOK, w.Code)
	_, body = s.do(t, http.MethodGet, "/auth/session", bob.AccessToken, nil)
	require.Equal(t, "user", body["identity"].(map[string]interface{})["role"])
	w, _ = s.do(t, http.MethodPost, "/auth/refresh", "", gin.H{"refreshToken": bob.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	var bob2 SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bob2))
	require.Equal(t, models.RoleManager, bob2.Identity.Role)

	w, _ = s.do(t, http.MethodPut, path+"/password", admin.AccessToken, gin.H{"password": "short"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodPut, path+"/password", admin.AccessToken, gin.H{"password": "new-bob-password"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w, body = s.do(t, http.MethodPost, path+"/deactivate", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), body["revokedSessions"])

	w, body = s.do(t, http.MethodGet, "/auth/session", bob2.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, models.CodeTokenRevoked, body["code"])
	w, _ = s.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "bob", "password": "new-bob-password"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/admin/identities/999", admin.AccessToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodGet, "/admin/identities/abc", admin.AccessToken, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_RevokeSessions(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "root", "root-password")
	a := s.login(t, "alice", "alice-password")
	b := s.login(t, "alice", "alice-password")

	aliceID := a.Identity.ID
	w, body := s.do(t, http.MethodPost, "/admin/identities/"+jsonInt(aliceID)+"/sessions/revoke", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(2), body["revokedSessions"])

	for _, tok := range []string{a.AccessToken, b.AccessToken} {
		w, _ = s.do(t, http.MethodGet, "/auth/session", tok, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	// alice can log in again
	s.login(t, "alice", "alice-password")
}

func TestAdmin_ExportAudit(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "root", "root-password")

	from := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	w, body := s.do(t, http.MethodPost, "/admin/audit/export", admin.AccessToken, gin.H{"from": from})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.GreaterOrEqual(t, body["events"], float64(1))
	require.Len(t, s.store.keys, 1)

	w, _ = s.do(t, http.MethodPost, "/admin/audit/export", admin.AccessToken, gin.H{"from": "yesterday"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
