package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "issued_total",
		Namespace: Namespace,
		Subsystem: TokenSubsystem,
		Help:      "Access tokens issued for full host boot disks",
	})
)

var (
	TokenVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "verifications_total",
		Namespace: Namespace,
		Subsystem: TokenSubsystem,
		Help:      "Access token verifications by result",
	}, []string{"result"})
)

func TokenVerified(result string) {
	TokenVerifications.WithLabelValues(result).Inc()
}
