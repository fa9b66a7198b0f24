package common

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Store context in request logger to propagate correlation ids, and log
// every served request at debug level.
func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ell := NewEchoLogrusLogger(logrus.StandardLogger(), c.Request().Context())
		defer ell.Close()

		c.SetLogger(ell)

		start := time.Now()
		err := next(c)
		ell.Logger.WithContext(c.Request().Context()).WithFields(logrus.Fields{
			"method":   c.Request().Method,
			"path":     c.Path(),
			"status":   c.Response().Status,
			"duration": time.Since(start),
		}).Debug("Request served")
		return err
	}
}
