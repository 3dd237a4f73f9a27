package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersAndRouteLabels(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/conversations/:id", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.POST("/conversations/:id/photos", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusSwitchingProtocols) })

	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/conversations/:id", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404"))
	basePhoto := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/conversations/:id/photos", "201"))
	baseWS := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/ws", "101"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/conversations/c1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/conversations/c2", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/conversations/c1/photos", strings.NewReader("jpegbytes")))

	ws := httptest.NewRequest(http.MethodGet, "/ws", nil)
	ws.Header.Set("Upgrade", "websocket")
	r.ServeHTTP(httptest.NewRecorder(), ws)

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/conversations/:id", "200")); got != baseOK+2 {
		t.Fatalf("route counter=%v want %v", got, baseOK+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404")); got != base404+1 {
		t.Fatalf("unmatched counter=%v want %v", got, base404+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/conversations/:id/photos", "201")); got != basePhoto+1 {
		t.Fatalf("photo counter=%v want %v", got, basePhoto+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/ws", "101")); got != baseWS+1 {
		t.Fatalf("ws counter=%v want %v", got, baseWS+1)
	}
	if n := testutil.ToFloat64(httpInflight); n != 0 {
		t.Fatalf("inflight=%v want 0", n)
	}
}
