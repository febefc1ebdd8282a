package common

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github/finchase/go-signing/internal/api"
)

func GetHealthyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/healthy", getHealthyHandler(s))
}

// getHealthyHandler is the liveness probe. It only proves the process serves
// HTTP; readiness of the components is the /-/ready check.
func getHealthyHandler(_ *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, "Healthy.")
	}
}
