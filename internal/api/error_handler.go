package api

import (
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"

	"github/finchase/go-signing/internal/api/httperrors"
	"github/finchase/go-signing/internal/util"
)

// errorHandler maps the error types handlers return onto public JSON
// payloads. Internal errors are hidden behind a generic 500 when configured.
func errorHandler(hideInternalErrors bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			code    = http.StatusInternalServerError
			payload interface{}
		)

		switch e := err.(type) {
		case *httperrors.HTTPValidationError:
			code = int(swag.Int64Value(e.Code))
			payload = e
		case *httperrors.HTTPError:
			code = int(swag.Int64Value(e.Code))
			payload = e
		case *echo.HTTPError:
			code = e.Code
			payload = httperrors.NewHTTPError(e.Code, httperrors.TypeGeneric, http.StatusText(e.Code))
		default:
			util.LogFromContext(c.Request().Context()).Error().Err(err).Msg("Unhandled error")
			title := http.StatusText(code)
			if !hideInternalErrors {
				title = err.Error()
			}
			payload = httperrors.NewHTTPError(code, httperrors.TypeGeneric, title)
		}

		if writeErr := c.JSON(code, payload); writeErr != nil {
			util.LogFromContext(c.Request().Context()).Error().Err(writeErr).Msg("Failed to write error response")
		}
	}
}
