package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/metrics", gin.WrapH(Handler()))
	return r
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	r := newTestRouter()
	tests := []struct {
		target string
		path   string
		status string
	}{
		{"/ok", "/ok", "200"},
		{"/items/42", "/items/:id", "404"},
		{"/missing", "unknown", "404"},
	}
	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", tc.path, tc.status))
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.target, http.NoBody))
			after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", tc.path, tc.status))
			require.Equal(t, before+1, after)
		})
	}
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(ingestChunksTotal)
	AddIngestedChunks(3)
	AddIngestedChunks(0)
	require.Equal(t, before+3, testutil.ToFloat64(ingestChunksTotal))

	g := testutil.ToFloat64(gatewayRequestsTotal.WithLabelValues("openai", "ok"))
	ObserveGatewayRequest("openai", "ok")
	require.Equal(t, g+1, testutil.ToFloat64(gatewayRequestsTotal.WithLabelValues("openai", "ok")))

	h := testutil.ToFloat64(embeddingCacheTotal.WithLabelValues("lru", "hit"))
	ObserveCache("lru", true)
	require.Equal(t, h+1, testutil.ToFloat64(embeddingCacheTotal.WithLabelValues("lru", "hit")))

	ObserveQuery("vector", time.Now())
	require.Greater(t, testutil.CollectAndCount(queryDuration), 0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := newTestRouter()
	AddIngestedChunks(1)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), "classmate_ingest_chunks_total"))
}
