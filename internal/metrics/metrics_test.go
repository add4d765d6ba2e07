package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestMetricsMiddlewareIncrementsCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)

	InitMetrics()

	r := gin.New()
	r.Use(Middleware())
	r.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRegisterExposesDomainCollectors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	InitMetrics()
	IndexConflict("metadata.json")
	RepositoryProvisioned()
	ObserveRemoteRequest("put_file", "201", 10*time.Millisecond)

	r := gin.New()
	Register(r, "/metrics")

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"picvault_index_conflicts_total", "picvault_repositories_provisioned_total", "picvault_remote_request_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in /metrics output", name)
		}
	}
}
