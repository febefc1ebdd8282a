package api

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github/finchase/go-signing/internal/api/httperrors"
)

// Router groups the route hierarchies the handlers attach to.
type Router struct {
	Routes []*echo.Route

	Root         *echo.Group
	Management   *echo.Group
	APIV1Wallets *echo.Group
	APIV1Signing *echo.Group
	APIV1Intents *echo.Group
}

// InitRouter sets up echo with the service middleware and route groups.
// Handler registration happens afterwards via the handlers package.
func InitRouter(s *Server) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetOutput(&echoLogAdapter{})
	e.HTTPErrorHandler = errorHandler(s.Config.Echo.HideInternalServerErrors)

	if s.Config.Echo.EnableRecoverMiddleware {
		e.Use(middleware.Recover())
	}
	e.Use(middleware.RequestID())
	if s.Config.Echo.EnableLoggerMiddleware {
		e.Use(loggerMiddleware(s))
	}

	s.Echo = e
	s.Router = &Router{
		Root:         e.Group(""),
		Management:   e.Group("/-", ManagementSecretMiddleware(s.Config.ManagementSecret)),
		APIV1Wallets: e.Group("/api/v1/wallets"),
		APIV1Signing: e.Group("/api/v1/signing"),
		APIV1Intents: e.Group("/api/v1/intents"),
	}

	if s.Metrics != nil {
		s.Router.Management.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		))
	}
}

// loggerMiddleware injects a request-scoped zerolog logger and emits one
// line per request.
func loggerMiddleware(s *Server) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.New().String()
			}

			l := log.With().
				Str("request_id", id).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Logger()

			ctx := l.WithContext(req.Context())
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			status := c.Response().Status
			if httpErr, ok := err.(*echo.HTTPError); ok {
				status = httpErr.Code
			}

			l.WithLevel(s.Config.Logger.RequestLevel).
				Int("status", status).
				Msg("Request handled")

			return err
		}
	}
}

type echoLogAdapter struct{}

func (a *echoLogAdapter) Write(p []byte) (int, error) {
	log.Debug().Msg(string(p))
	return len(p), nil
}

// ManagementSecretMiddleware guards the management endpoints with the
// configured secret, passed as ?mgmt-secret=.
func ManagementSecretMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return next(c)
			}
			if c.QueryParam("mgmt-secret") != secret {
				return httperrors.ErrForbiddenManagement
			}
			return next(c)
		}
	}
}
