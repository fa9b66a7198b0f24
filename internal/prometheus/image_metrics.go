package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImagesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "generated_total",
		Namespace: Namespace,
		Subsystem: ImageSubsystem,
		Help:      "Boot disks generated successfully",
	}, []string{"type"})
)

var (
	ImageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "failures_total",
		Namespace: Namespace,
		Subsystem: ImageSubsystem,
		Help:      "Boot disks that could not be generated, by reason",
	}, []string{"type", "reason"})
)

var (
	ImageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:      "generation_duration_seconds",
		Namespace: Namespace,
		Subsystem: ImageSubsystem,
		Help:      "Time spent rendering and assembling a boot disk.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .2, .5, 1, 2, 5},
	}, []string{"type"})
)

var (
	ImageSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:      "size_bytes",
		Namespace: Namespace,
		Subsystem: ImageSubsystem,
		Help:      "Size of generated boot disks.",
		Buckets:   prometheus.ExponentialBuckets(256*1024, 2, 8),
	}, []string{"type"})
)

// ObserveImage starts timing the generation of an image of the given type.
func ObserveImage(imageType string) ObserveFunc {
	pt := prometheus.NewTimer(ImageDuration.WithLabelValues(imageType))
	return pt.ObserveDuration
}

func ImageGenerated(imageType string, size int64) {
	ImagesGenerated.WithLabelValues(imageType).Inc()
	ImageSize.WithLabelValues(imageType).Observe(float64(size))
}

func ImageFailed(imageType, reason string) {
	ImageFailures.WithLabelValues(imageType, reason).Inc()
}
