package worker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	tests := []struct {
		header   string
		expected string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "strict-origin-when-cross-origin"},
		{"Content-Security-Policy", "default-src 'none'"},
	}

	for _, tt := range tests {
		if got := rr.Header().Get(tt.header); got != tt.expected {
			t.Errorf("SecurityHeaders() %s = %q, want %q", tt.header, got, tt.expected)
		}
	}
}

func TestSecurityHeaders_CORS(t *testing.T) {
	handler := SecurityHeaders(okHandler())

	tests := []struct {
		name       string
		origin     string
		expectCORS bool
	}{
		{name: "vite dev server allowed", origin: "http://localhost:5173", expectCORS: true},
		{name: "loopback allowed", origin: "http://127.0.0.1", expectCORS: true},
		{name: "external origin blocked", origin: "http://evil.com"},
		{name: "evil-localhost.com bypass attempt blocked", origin: "http://evil-localhost.com"},
		{name: "localhost subdomain bypass attempt blocked", origin: "http://localhost.evil.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			got := rr.Header().Get("Access-Control-Allow-Origin")
			if tt.expectCORS {
				assert.Equal(t, tt.origin, got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestSecurityHeaders_Preflight(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/users/u1/recompute", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestMaxBodySize(t *testing.T) {
	handler := MaxBodySize(100)(okHandler())

	tests := []struct {
		name           string
		contentLength  int64
		expectedStatus int
	}{
		{name: "within limit", contentLength: 50, expectedStatus: http.StatusOK},
		{name: "at limit", contentLength: 100, expectedStatus: http.StatusOK},
		{name: "exceeds limit", contentLength: 150, expectedStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", nil)
			req.ContentLength = tt.contentLength
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("MaxBodySize() status = %d, want %d", rr.Code, tt.expectedStatus)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates new request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
		assert.Equal(t, rr.Header().Get("X-Request-ID"), seen)
	})

	t.Run("uses existing request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", "test-id-12345")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, "test-id-12345", rr.Header().Get("X-Request-ID"))
		assert.Equal(t, "test-id-12345", seen)
	})

	t.Run("replaces oversized request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Len(t, rr.Header().Get("X-Request-ID"), 36)
	})
}

func TestGetRequestID_Missing(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	assert.Empty(t, GetRequestID(req.Context()))
}

func TestRequireJSONContentType(t *testing.T) {
	handler := RequireJSONContentType(okHandler())

	tests := []struct {
		name           string
		method         string
		contentType    string
		expectedStatus int
	}{
		{name: "GET without content type", method: "GET", expectedStatus: http.StatusOK},
		{name: "POST with JSON", method: "POST", contentType: "application/json", expectedStatus: http.StatusOK},
		{name: "POST with JSON charset", method: "POST", contentType: "application/json; charset=utf-8", expectedStatus: http.StatusOK},
		{name: "POST without content type", method: "POST", expectedStatus: http.StatusOK},
		{name: "POST with form", method: "POST", contentType: "application/x-www-form-urlencoded", expectedStatus: http.StatusUnsupportedMediaType},
		{name: "PUT with text", method: "PUT", contentType: "text/plain", expectedStatus: http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		wantErr bool
	}{
		{name: "simple", userID: "u1"},
		{name: "uuid", userID: "5b0f3c8e-7d3a-4a57-9f0e-3d1f2a9c4b11"},
		{name: "namespaced", userID: "tenant:user_42.eu"},
		{name: "empty", userID: "", wantErr: true},
		{name: "slash", userID: "a/b", wantErr: true},
		{name: "space", userID: "a b", wantErr: true},
		{name: "too long", userID: strings.Repeat("a", 129), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.userID)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPerUserRateLimitMiddleware(t *testing.T) {
	limiter := NewKeyedRateLimiter(1.0/60, 2)
	router := chi.NewRouter()
	router.With(PerUserRateLimitMiddleware(limiter)).Post("/users/{userID}/recompute", okHandler().ServeHTTP)

	call := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/users/"+userID+"/recompute", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, call("u1").Code)
	assert.Equal(t, http.StatusOK, call("u1").Code)

	limited := call("u1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	// Other users have their own bucket.
	assert.Equal(t, http.StatusOK, call("u2").Code)

	stats := limiter.Stats()
	assert.Equal(t, 2, stats["active_keys"])
	assert.Equal(t, int64(4), stats["total_requests"])
	assert.Equal(t, int64(1), stats["total_rejected"])
}

func TestRateLimiter_Refills(t *testing.T) {
	limiter := NewRateLimiter(1000, 1)
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())
	assert.Greater(t, limiter.RetryAfter(), time.Duration(0))

	time.Sleep(5 * time.Millisecond)
	assert.True(t, limiter.Allow())
}
