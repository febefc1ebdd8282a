package common

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/util"
)

func GetReadyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/ready", getReadyHandler(s))
}

// getReadyHandler reports whether the service can actually serve: all
// components bound and the database (when configured) reachable.
func getReadyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		if !s.Ready() {
			return c.String(521, "Not ready.")
		}

		if s.DB != nil {
			if err := s.DB.PingContext(ctx); err != nil {
				util.LogFromContext(ctx).Warn().Err(err).Msg("Database ping failed during readiness check")
				return c.String(521, "Not ready.")
			}
		}

		return c.String(http.StatusOK, "Ready.")
	}
}
