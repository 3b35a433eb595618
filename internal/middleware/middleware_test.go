package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tutormarket/backend/internal/ratelimit"
)

type fakeVerifier map[string]*auth.Token

func (f fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	tok, ok := f[idToken]
	if !ok {
		return nil, errors.New("bad token")
	}
	return tok, nil
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func TestWithAuth(t *testing.T) {
	verifier := fakeVerifier{
		"good": {UID: "u1", Claims: map[string]any{"email": "u1@example.com"}},
	}
	var seen *AuthUser
	h := WithAuth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetAuthUser(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer good", want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UID)
	assert.Equal(t, "u1@example.com", seen.Email)
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, IsAdmin(map[string]any{"admin": true}))
	assert.True(t, IsAdmin(map[string]any{"role": "admin"}))
	assert.True(t, IsAdmin(map[string]any{"roles": []interface{}{"teacher", "admin"}}))
	assert.False(t, IsAdmin(map[string]any{"role": "teacher"}))
	assert.False(t, IsAdmin(nil))
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithAuthUser(req.Context(), &AuthUser{UID: "u1", Claims: map[string]any{"role": "student"}}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(WithAuthUser(req.Context(), &AuthUser{UID: "a1", Claims: map[string]any{"admin": true}}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.DefaultRules(), zap.NewNop())
	h := RateLimit(limiter, ratelimit.CategoryPayment)(http.HandlerFunc(okHandler))

	call := func(uid string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/payouts", nil)
		req = req.WithContext(WithAuthUser(req.Context(), &AuthUser{UID: uid}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 5; i++ {
		rec := call("u1")
		require.Equal(t, http.StatusNoContent, rec.Code, "call %d", i+1)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := call("u1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"remaining":0`)

	assert.Equal(t, http.StatusNoContent, call("u2").Code, "other callers keep their own budget")
}

func TestCallerKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	assert.Equal(t, "ip:203.0.113.9", callerKey(req))

	req = req.WithContext(WithAuthUser(req.Context(), &AuthUser{UID: "u1"}))
	assert.Equal(t, "uid:u1", callerKey(req))
}

func TestRecover(t *testing.T) {
	h := Recover(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
