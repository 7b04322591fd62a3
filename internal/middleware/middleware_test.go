package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(handlers...)
	engine.GET("/ping", func(c *gin.Context) {
		id, _ := c.Get(ContextRequestIDKey)
		value, _ := id.(string)
		c.String(http.StatusOK, value)
	})
	return engine
}

func TestRequestIDGenerated(t *testing.T) {
	engine := newTestEngine(RequestID())
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	id := resp.Header().Get("X-Request-Id")
	require.Len(t, id, 36)
	require.Equal(t, id, resp.Body.String())
}

func TestRequestIDReused(t *testing.T) {
	engine := newTestEngine(RequestID())
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)
	require.Equal(t, "abc-123", resp.Header().Get("X-Request-Id"))
}

func TestCORS(t *testing.T) {
	engine := newTestEngine(CORS(nil))
	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)
	require.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))

	engine = newTestEngine(CORS([]string{"http://localhost:3000"}))
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp = httptest.NewRecorder()
	engine.ServeHTTP(resp, req)
	require.Equal(t, "http://localhost:3000", resp.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp = httptest.NewRecorder()
	engine.ServeHTTP(resp, req)
	require.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}
