package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(tokenString string) (int, string, error) {
	if tokenString != "good-token" {
		return 0, "", fmt.Errorf("bad token")
	}
	return 42, "root", nil
}

func protected(t *testing.T) http.Handler {
	t.Helper()
	am := NewAuthMiddleware(stubValidator{}, "admin-token")
	return am.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, 42, r.Context().Value(UserKey))
		assert.Equal(t, "root", r.Context().Value(UsernameKey))
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	protected(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthAcceptsQueryParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?token=good-token", nil)
	rec := httptest.NewRecorder()
	protected(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthAcceptsCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "admin-token", Value: "good-token"})
	rec := httptest.NewRecorder()
	protected(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsMissingAndInvalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	protected(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	protected(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
