package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	guard := NewGuard(f.svc, NewActivityLimiter(f.rdb, "test:", time.Minute), DefaultAllowList)

	r := gin.New()
	r.Use(guard.Middleware())
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
	r.GET("/api/v1/exams/results", RequireAuth(), ok)
	r.POST("/api/v1/payments/create", RequireAuth(), ok)
	r.GET("/api/v1/admin/ping", RequireAdmin(), ok)
	r.POST("/api/v1/exams/generate", RequireStudent(), ok)
	r.GET("/api/v1/public", ok)
	return r
}

func do(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGuardRejectsSupersededSession(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	first, _ := f.login(t, "student@example.com", "phone")
	assert.Equal(t, http.StatusOK, do(r, "GET", "/api/v1/exams/results", first.Access).Code)

	second, _ := f.login(t, "student@example.com", "laptop")

	w := do(r, "GET", "/api/v1/exams/results", first.Access)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error": "Session expired. Please login again."}`, w.Body.String())

	assert.Equal(t, http.StatusOK, do(r, "GET", "/api/v1/exams/results", second.Access).Code)

	// allow-listed paths skip the session check but keep the identity
	assert.Equal(t, http.StatusOK, do(r, "POST", "/api/v1/payments/create", first.Access).Code)
}

func TestGuardAuthAndAdmin(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	assert.Equal(t, http.StatusUnauthorized, do(r, "GET", "/api/v1/exams/results", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "GET", "/api/v1/exams/results", "garbage").Code)
	assert.Equal(t, http.StatusOK, do(r, "GET", "/api/v1/public", "garbage").Code)

	student, _ := f.login(t, "student@example.com", "phone")
	assert.Equal(t, http.StatusForbidden, do(r, "GET", "/api/v1/admin/ping", student.Access).Code)

	assert.Equal(t, http.StatusOK, do(r, "POST", "/api/v1/exams/generate", student.Access).Code)

	admin, _ := f.login(t, "admin@example.com", "phone")
	assert.Equal(t, http.StatusOK, do(r, "GET", "/api/v1/admin/ping", admin.Access).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "POST", "/api/v1/exams/generate", admin.Access).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "POST", "/api/v1/exams/generate", "").Code)
}
