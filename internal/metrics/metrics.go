package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "picvault",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "picvault",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	remoteDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "picvault",
		Name:      "remote_request_duration_seconds",
		Help:      "Latency of calls to the backing object store.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op", "status"})

	indexConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "picvault",
		Name:      "index_conflicts_total",
		Help:      "Concurrency-token conflicts hit while writing an index file.",
	}, []string{"index"})

	provisioned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "picvault",
		Name:      "repositories_provisioned_total",
		Help:      "Storage repositories created by the allocator.",
	})

	omissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "picvault",
		Name:      "aggregation_omissions_total",
		Help:      "Repositories skipped by aggregating reads because they could not be fetched.",
	}, []string{"index"})

	orphanedBlobs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "picvault",
		Name:      "orphaned_blobs_total",
		Help:      "Blobs left without an index record.",
	})

	uploadedBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "picvault",
		Name:      "uploaded_bytes_total",
		Help:      "Bytes committed as asset blobs, by visibility.",
	}, []string{"visibility"})
)

// InitMetrics registers the collectors with the default registry. Safe to call repeatedly.
func InitMetrics() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			remoteDuration,
			indexConflicts,
			provisioned,
			omissions,
			orphanedBlobs,
			uploadedBytes,
		)
	})
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// ObserveRemoteRequest records the latency of one backing-store call.
func ObserveRemoteRequest(op, status string, d time.Duration) {
	remoteDuration.WithLabelValues(op, status).Observe(d.Seconds())
}

// IndexConflict counts a token conflict on the named index file.
func IndexConflict(index string) {
	indexConflicts.WithLabelValues(index).Inc()
}

// RepositoryProvisioned counts a newly created storage repository.
func RepositoryProvisioned() {
	provisioned.Inc()
}

// AggregationOmission counts a repository skipped while aggregating an index.
func AggregationOmission(index string) {
	omissions.WithLabelValues(index).Inc()
}

// OrphanedBlob counts a blob whose index record could not be written or was already removed.
func OrphanedBlob() {
	orphanedBlobs.Inc()
}

// Uploaded adds the size of a committed blob.
func Uploaded(visibility string, bytes int64) {
	uploadedBytes.WithLabelValues(visibility).Add(float64(bytes))
}
