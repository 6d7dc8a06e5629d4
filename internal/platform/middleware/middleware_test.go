package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowaudit/internal/platform/jwtauth"
	"flowaudit/internal/platform/middleware"
	"flowaudit/pkg/requestcontext"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestRequestMetadata_PopulatesContext(t *testing.T) {
	var captured struct {
		requestID string
		clientIP  string
		userAgent string
		now       time.Time
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		captured.requestID = requestcontext.RequestID(ctx)
		captured.clientIP = requestcontext.ClientIP(ctx)
		captured.userAgent = requestcontext.UserAgent(ctx)
		captured.now = requestcontext.Now(ctx)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:54321"
	req.Header.Set("User-Agent", "test-agent")
	rr := httptest.NewRecorder()
	before := time.Now()
	middleware.RequestMetadata(next).ServeHTTP(rr, req)

	assert.NotEmpty(t, captured.requestID)
	assert.Equal(t, captured.requestID, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "198.51.100.7", captured.clientIP)
	assert.Equal(t, "test-agent", captured.userAgent)
	assert.False(t, captured.now.Before(before), "request time is stamped at request start")
}

func TestRequestMetadata_KeepsIncomingRequestID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-incoming")
	rr := httptest.NewRecorder()
	middleware.RequestMetadata(next).ServeHTTP(rr, req)

	assert.Equal(t, "req-incoming", rr.Header().Get("X-Request-ID"))
}

func TestRequestMetadata_PrefersForwardedFor(t *testing.T) {
	var ip string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	middleware.RequestMetadata(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.9", ip)
}

func TestRequireAuth(t *testing.T) {
	svc := jwtauth.New("test-signing-key", "flowaudit", "portal")
	token, err := svc.GenerateToken("user-1", "session-2", "org-3", time.Hour)
	require.NoError(t, err)

	var claims struct {
		userID string
		orgID  string
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims.userID = requestcontext.UserID(r.Context())
		claims.orgID = requestcontext.OrganizationID(r.Context())
	})
	protected := middleware.RequireAuth(svc, testLogger())(next)

	t.Run("valid token passes and fills context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "user-1", claims.userID)
		assert.Equal(t, "org-3", claims.orgID)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		expired, err := svc.GenerateToken("user-1", "session-2", "org-3", -time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+expired)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		other := jwtauth.New("other-key", "flowaudit", "portal")
		forged, err := other.GenerateToken("user-1", "session-2", "org-3", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+forged)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
