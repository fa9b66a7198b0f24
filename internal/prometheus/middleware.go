package prometheus

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

func MetricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		TotalRequests.Inc()
		timer := prometheus.NewTimer(httpDuration.WithLabelValues(pathLabel(ctx.Path())))
		defer timer.ObserveDuration()
		err := next(ctx)
		if status(ctx, err) >= http.StatusInternalServerError {
			RequestFailures.Inc()
		}
		return err
	}
}

func status(ctx echo.Context, err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	if err != nil {
		return http.StatusInternalServerError
	}
	return ctx.Response().Status
}
