package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/redmonkez12/go-auth-service/internal/auth"
	"github.com/redmonkez12/go-auth-service/internal/config"
	"github.com/redmonkez12/go-auth-service/internal/database"
	"github.com/redmonkez12/go-auth-service/internal/logging"
	"github.com/redmonkez12/go-auth-service/internal/ratelimit"
	"github.com/redmonkez12/go-auth-service/internal/user"
)

// stubEmailService records sent reset tokens instead of talking SMTP.
type stubEmailService struct {
	sent chan string
}

func (s *stubEmailService) SendPasswordResetEmail(_ context.Context, _, token string) error {
	s.sent <- token
	return nil
}

// newTestServer wires the full router against an in-memory SQLite store.
// The rate limiter points at a dead Redis address; the handlers fail open,
// which is the behavior under test for limiter outages anyway.
func newTestServer(t *testing.T) (*httptest.Server, *stubEmailService) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	sqlDB, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	_, err = db.NewCreateTable().
		Model((*database.User)(nil)).
		Exec(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	redisClient := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { redisClient.Close() })

	logger := logging.NewLogger(true)
	service := auth.NewService(user.NewStore(db))
	limiter := ratelimit.NewLimiter(redisClient, time.Minute, 10)
	emails := &stubEmailService{sent: make(chan string, 1)}

	handler := auth.NewHandler(service, limiter, emails, logger, false)
	middleware := auth.NewMiddleware(service)

	cfg := &config.Config{}
	cfg.Server.Env = "dev"

	srv := httptest.NewServer(NewRouter(cfg, handler, middleware, logger))
	t.Cleanup(srv.Close)

	return srv, emails
}

// newCookieClient returns an http.Client that carries cookies between
// requests, the way a browser holds the session cookie.
func newCookieClient(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &http.Client{Jar: jar}
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func TestAuthFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	jar := newCookieClient(t)

	// Register.
	resp := postJSON(t, jar, srv.URL+"/auth/register", map[string]string{
		"email":    "a@x.com",
		"password": "pw1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Duplicate registration conflicts.
	resp = postJSON(t, jar, srv.URL+"/auth/register", map[string]string{
		"email":    "a@x.com",
		"password": "pw1",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Profile without a session is rejected.
	resp, err := jar.Get(srv.URL + "/profile")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Wrong password is rejected.
	resp = postJSON(t, jar, srv.URL+"/auth/login", map[string]string{
		"email":    "a@x.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Login sets the session cookie.
	resp = postJSON(t, jar, srv.URL+"/auth/login", map[string]string{
		"email":    "a@x.com",
		"password": "pw1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Profile resolves the session.
	resp, err = jar.Get(srv.URL + "/profile")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var profile struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&profile))
	resp.Body.Close()
	assert.Equal(t, "a@x.com", profile.Email)
	assert.Equal(t, int64(1), profile.ID)

	// Logout destroys the session.
	resp = postJSON(t, jar, srv.URL+"/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = jar.Get(srv.URL + "/profile")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestPasswordResetFlow(t *testing.T) {
	srv, emails := newTestServer(t)
	client := newCookieClient(t)

	resp := postJSON(t, client, srv.URL+"/auth/register", map[string]string{
		"email":    "a@x.com",
		"password": "old-pw",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Request a reset; the token goes out by email.
	resp = postJSON(t, client, srv.URL+"/auth/forgot-password", map[string]string{
		"email": "a@x.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var token string
	select {
	case token = <-emails.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("reset email was never sent")
	}
	require.NotEmpty(t, token)

	// Unknown addresses get the same response.
	resp = postJSON(t, client, srv.URL+"/auth/forgot-password", map[string]string{
		"email": "nobody@x.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Consume the token.
	resp = postJSON(t, client, srv.URL+"/auth/reset-password", map[string]string{
		"token":        token,
		"new_password": "new-pw",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Old password no longer logs in, new one does.
	resp = postJSON(t, client, srv.URL+"/auth/login", map[string]string{
		"email":    "a@x.com",
		"password": "old-pw",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, client, srv.URL+"/auth/login", map[string]string{
		"email":    "a@x.com",
		"password": "new-pw",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The token was consumed.
	resp = postJSON(t, client, srv.URL+"/auth/reset-password", map[string]string{
		"token":        token,
		"new_password": "again",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}
