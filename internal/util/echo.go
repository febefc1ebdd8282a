package util

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github/finchase/go-signing/internal/api/httperrors"
)

// Validatable payload types check their own invariants after binding.
type Validatable interface {
	Validate() []*httperrors.HTTPValidationErrorDetail
}

// BindAndValidateBody binds the request body into v and runs its validation
// if it implements Validatable. Binding and validation failures come back as
// public HTTP errors.
func BindAndValidateBody(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.TypeGeneric, "Malformed request body.", err.Error())
	}

	if validatable, ok := v.(Validatable); ok {
		if details := validatable.Validate(); len(details) > 0 {
			return httperrors.NewHTTPValidationError(http.StatusBadRequest, httperrors.TypeGeneric, "Invalid request body.", details)
		}
	}

	return nil
}
