package httperrors

import (
	"fmt"
	"net/http"

	"github.com/go-openapi/swag"
)

// HTTPError is the public JSON error payload the API returns.
type HTTPError struct {
	Code           *int64                 `json:"status"`
	Type           *string                `json:"type"`
	Title          *string                `json:"title"`
	Detail         string                 `json:"detail,omitempty"`
	AdditionalData map[string]interface{} `json:"additionalData,omitempty"`
	Internal       error                  `json:"-"`
}

// HTTPValidationError extends HTTPError with per-field details.
type HTTPValidationError struct {
	HTTPError
	ValidationErrors []*HTTPValidationErrorDetail `json:"validationErrors"`
}

// HTTPValidationErrorDetail describes a single invalid field.
type HTTPValidationErrorDetail struct {
	Key   *string `json:"key"`
	In    *string `json:"in"`
	Error *string `json:"error"`
}

// TypeGeneric is the default public error type.
const TypeGeneric = "generic"

// NewHTTPError builds a public error payload.
func NewHTTPError(code int, errorType string, title string) *HTTPError {
	return &HTTPError{
		Code:  swag.Int64(int64(code)),
		Type:  swag.String(errorType),
		Title: swag.String(title),
	}
}

// NewHTTPErrorWithDetail builds a public error payload carrying a detail
// message.
func NewHTTPErrorWithDetail(code int, errorType string, title string, detail string) *HTTPError {
	err := NewHTTPError(code, errorType, title)
	err.Detail = detail
	return err
}

// NewHTTPValidationError builds a payload for invalid request bodies.
func NewHTTPValidationError(code int, errorType string, title string, validationErrors []*HTTPValidationErrorDetail) *HTTPValidationError {
	return &HTTPValidationError{
		HTTPError: HTTPError{
			Code:  swag.Int64(int64(code)),
			Type:  swag.String(errorType),
			Title: swag.String(title),
		},
		ValidationErrors: validationErrors,
	}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTPError %d (%s): %s", swag.Int64Value(e.Code), swag.StringValue(e.Type), swag.StringValue(e.Title))
}

func (e *HTTPValidationError) Error() string {
	return fmt.Sprintf("%s, %d validation errors", e.HTTPError.Error(), len(e.ValidationErrors))
}

var (
	ErrNotFoundWallet      = NewHTTPError(http.StatusNotFound, TypeGeneric, "Wallet not found.")
	ErrConflictWallet      = NewHTTPError(http.StatusConflict, TypeGeneric, "An active wallet already exists for this owner and purpose.")
	ErrNotFoundNonce       = NewHTTPError(http.StatusNotFound, TypeGeneric, "No wallet for nonce operation.")
	ErrBadRequestKeyID     = NewHTTPError(http.StatusBadRequest, TypeGeneric, "Unknown signing key.")
	ErrBadGatewaySigning   = NewHTTPError(http.StatusBadGateway, TypeGeneric, "Signature computation failed.")
	ErrConflictIntent      = NewHTTPError(http.StatusConflict, TypeGeneric, "Intent nonce already consumed.")
	ErrForbiddenManagement = NewHTTPError(http.StatusForbidden, TypeGeneric, "Invalid management secret.")
)
