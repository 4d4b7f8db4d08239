package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"metricwatch/internal/services"
)

func TestOriginAllowed(t *testing.T) {
	assert.True(t, OriginAllowed("http://anything", nil))
	assert.False(t, OriginAllowed("", nil))

	allowed := []string{"http://localhost:3000/", "dashboard.example.com"}
	assert.True(t, OriginAllowed("http://localhost:3000", allowed))
	assert.True(t, OriginAllowed("https://dashboard.example.com", allowed))
	assert.False(t, OriginAllowed("http://evil.example", allowed))
	assert.True(t, OriginAllowed("http://evil.example", []string{"*"}))
}

func TestIPAllowList(t *testing.T) {
	assert.True(t, NewIPAllowList(nil).IsAllowed("203.0.113.9"))

	wl := NewIPAllowList([]string{"203.0.113.9"})
	assert.True(t, wl.IsAllowed("203.0.113.9"))
	assert.True(t, wl.IsAllowed("127.0.0.1"))
	assert.True(t, wl.IsAllowed("::1"))
	assert.False(t, wl.IsAllowed("198.51.100.1"))
}

func TestValidTokenFormat(t *testing.T) {
	assert.True(t, ValidTokenFormat("aaaaaaaa.bbbbbbbbbb.cccccccc"))
	assert.False(t, ValidTokenFormat("short.a.b"))
	assert.False(t, ValidTokenFormat("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
}

func TestValidUsername(t *testing.T) {
	assert.True(t, ValidUsername("admin_01.ops-team"))
	assert.False(t, ValidUsername(""))
	assert.False(t, ValidUsername("admin; drop"))
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	telemetry := services.NewTelemetry(services.NewMetricsStore(1))

	r := gin.New()
	r.Use(RateLimitMiddleware(NewRateLimiter(rate.Limit(0.001), 2), zerolog.Nop(), telemetry))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, mustGatherAndCount(t, telemetry, "metricwatch_api_rate_limit_hits_total"))
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"http://localhost:3000"}))
	r.GET("/metrics/current", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/metrics/current", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func mustGatherAndCount(t *testing.T, telemetry *services.Telemetry, name string) int {
	t.Helper()
	n, err := testutil.GatherAndCount(telemetry.Registry, name)
	assert.NoError(t, err)
	return n
}
