package prometheus

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPathLabel(t *testing.T) {
	require.Equal(t, "/api/bootdisk/v1/hosts/-/full", pathLabel("/api/bootdisk/v1/hosts/:host/full"))
	require.Equal(t, "/api/bootdisk/v1/generic", pathLabel("/api/bootdisk/v1/generic"))
}

func TestImageMetrics(t *testing.T) {
	before := testutil.ToFloat64(ImagesGenerated.WithLabelValues("host"))
	ImageGenerated("host", 1<<20)
	require.Equal(t, before+1, testutil.ToFloat64(ImagesGenerated.WithLabelValues("host")))

	before = testutil.ToFloat64(ImageFailures.WithLabelValues("full_host", "render"))
	ImageFailed("full_host", "render")
	require.Equal(t, before+1, testutil.ToFloat64(ImageFailures.WithLabelValues("full_host", "render")))

	observe := ObserveImage("generic")
	require.GreaterOrEqual(t, observe().Nanoseconds(), int64(0))
}

func TestMetricsMiddlewareCountsFailures(t *testing.T) {
	e := echo.New()
	e.Use(MetricsMiddleware)
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/fail", func(c echo.Context) error { return errors.New("boom") })
	e.GET("/missing", func(c echo.Context) error { return echo.NewHTTPError(http.StatusNotFound) })

	requests := testutil.ToFloat64(TotalRequests)
	failures := testutil.ToFloat64(RequestFailures)

	for _, p := range []string{"/ok", "/fail", "/missing"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	require.Equal(t, requests+3, testutil.ToFloat64(TotalRequests))
	require.Equal(t, failures+1, testutil.ToFloat64(RequestFailures))
}
