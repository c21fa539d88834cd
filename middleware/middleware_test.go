package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	midsec "PPClient/middleware/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(r *gin.Engine, method, path, remote string, hdr map[string]string) int {
	req := httptest.NewRequest(method, path, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRoutesAndGuards(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	mm := NewManager()
	mm.Set("local", LocalOnly())
	r.Use(mm.Use())
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	GET(r, "/open", ok, RouteOpt{})
	POST(r, "/guarded", ok, RouteOpt{IsAuth: true, Auth: &midsec.Options{HeaderToken: "X-Status-Token", EnableAuthorizationBearer: true, Token: "s3cret"}})

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/open", "127.0.0.1:5555", nil))
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/open", "[::1]:5555", nil))
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/open", "10.0.0.8:5555", nil))

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/guarded", "127.0.0.1:1", nil))
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/guarded", "127.0.0.1:1", map[string]string{"X-Status-Token": "nope"}))
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/guarded", "127.0.0.1:1", map[string]string{"X-Status-Token": "s3cret"}))
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/guarded", "127.0.0.1:1", map[string]string{"Authorization": "Bearer s3cret"}))

	// lifting the origin guard at runtime
	assert.True(t, mm.Remove("local"))
	assert.False(t, mm.Remove("local"))
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/open", "10.0.0.8:5555", nil))
}

func TestManagerKeepsOrderOnReplace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen []string
	mark := func(tag string) gin.HandlerFunc {
		return func(*gin.Context) { seen = append(seen, tag) }
	}
	mm := NewManager()
	mm.Set("a", mark("a1"))
	mm.Set("b", mark("b"))
	mm.Set("a", mark("a2"))
	assert.Equal(t, []string{"a", "b"}, mm.Names())

	r := gin.New()
	r.Use(mm.Use())
	GET(r, "/", func(c *gin.Context) { c.Status(http.StatusOK) }, RouteOpt{})
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/", "", nil))
	assert.Equal(t, []string{"a2", "b"}, seen)
}

func TestEmptyTokenDisablesGuard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	POST(r, "/x", func(c *gin.Context) { c.Status(http.StatusOK) }, RouteOpt{IsAuth: true})
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/x", "", nil))
}
