package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeVerifier map[string]*auth.Token

func (f fakeVerifier) VerifyIDToken(_ context.Context, tok string) (*auth.Token, error) {
	if t, ok := f[tok]; ok {
		return t, nil
	}
	return nil, errors.New("bad token")
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	au, _ := GetAuthUser(r.Context())
	w.Header().Set("X-UID", au.UID)
	w.WriteHeader(http.StatusNoContent)
})

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWithAuth(t *testing.T) {
	v := fakeVerifier{"good": {UID: "u1", Claims: map[string]any{"email": "a@spa.test"}}}
	h := WithAuth(v, zap.NewNop())(okHandler)

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "forged").Code)

	rec := serve(h, "good")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", rec.Header().Get("X-UID"))
}

func TestRequireRoles(t *testing.T) {
	v := fakeVerifier{
		"admin":     {UID: "a", Claims: map[string]any{"role": "admin"}},
		"therapist": {UID: "t", Claims: map[string]any{"role": "therapist", "therapistId": "t1"}},
		"unlinked":  {UID: "x", Claims: map[string]any{"roles": map[string]interface{}{"therapist": true}}},
		"user":      {UID: "u", Claims: map[string]any{}},
	}
	admin := WithAuth(v, nil)(RequireAdmin(okHandler))
	therapist := WithAuth(v, nil)(RequireTherapist(okHandler))

	assert.Equal(t, http.StatusNoContent, serve(admin, "admin").Code)
	assert.Equal(t, http.StatusForbidden, serve(admin, "user").Code)
	assert.Equal(t, http.StatusForbidden, serve(admin, "therapist").Code)

	assert.Equal(t, http.StatusNoContent, serve(therapist, "therapist").Code)
	assert.Equal(t, http.StatusForbidden, serve(therapist, "unlinked").Code)
	assert.Equal(t, http.StatusForbidden, serve(therapist, "admin").Code)
}

func TestClaimHelpers(t *testing.T) {
	assert.True(t, IsAdmin(map[string]any{"admin": true}))
	assert.True(t, IsAdmin(map[string]any{"roles": []interface{}{"admin"}}))
	assert.False(t, IsAdmin(nil))
	assert.Equal(t, "", TherapistID(map[string]any{"therapistId": "t1"}))
	assert.Equal(t, "t1", TherapistID(map[string]any{"therapist": true, "therapistId": "t1"}))
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(2, zap.NewNop())
	h := l.Handler(okHandler)

	call := func(uid string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
		req = req.WithContext(WithAuthUser(req.Context(), &AuthUser{UID: uid}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("u1"))
	assert.Equal(t, http.StatusNoContent, call("u1"))
	assert.Equal(t, http.StatusTooManyRequests, call("u1"))
	assert.Equal(t, http.StatusNoContent, call("u2"))
}
