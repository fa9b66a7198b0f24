package common

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	ExternalIDKey    string = "externalID"
	ExternalIDHeader        = "X-External-Id"

	maxExternalIDLength = 128
)

const externalIDKeyCtx ctxKey = ctxKey(ExternalIDKey)

// ExternalIDMiddleware picks up the correlation id a caller such as Foreman
// sends along and echoes it back in the response. Oversized ids are
// dropped.
func ExternalIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		eid := strings.TrimSpace(c.Request().Header.Get(ExternalIDHeader))
		if eid == "" || len(eid) > maxExternalIDLength {
			return next(c)
		}

		c.Set(ExternalIDKey, eid)
		c.Response().Header().Set(ExternalIDHeader, eid)
		c.SetRequest(c.Request().WithContext(context.WithValue(c.Request().Context(), externalIDKeyCtx, eid)))
		return next(c)
	}
}
