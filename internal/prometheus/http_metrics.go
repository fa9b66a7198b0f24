package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TotalRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "total_requests",
		Namespace: Namespace,
		Subsystem: APISubsystem,
		Help:      "total number of http requests made to osbuild-bootdisk",
	})
)

var (
	DownloadRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "total_download_requests",
		Namespace: Namespace,
		Subsystem: APISubsystem,
		Help:      "total number of boot disk download requests",
	}, []string{"type"})
)

var (
	// counts all responses with a 5xx status
	RequestFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "total_failed_requests",
		Namespace: Namespace,
		Subsystem: APISubsystem,
		Help:      "total number of requests that failed with an internal error",
	})
)

var (
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:      "http_duration_seconds",
		Namespace: Namespace,
		Subsystem: APISubsystem,
		Help:      "Duration of HTTP requests.",
		Buckets:   []float64{.025, .05, .075, .1, .2, .5, .75, 1, 1.5, 2, 3, 4, 5, 6, 8, 10, 12, 14, 16, 20},
	}, []string{"path"})
)
