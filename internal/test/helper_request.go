package test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/util"
)

// Headers is a key/value map attached to a test request.
type Headers map[string]string

// PerformRequest runs a request against the server's echo instance without a
// network listener. A non-nil body is JSON encoded.
func PerformRequest(t *testing.T, s *api.Server, method string, path string, body interface{}, headers Headers) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req = req.WithContext(util.DisableLogger(req.Context(), true))
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	return rec
}

// ParseResponseAndValidate unmarshals the recorded JSON response body.
func ParseResponseAndValidate(t *testing.T, res *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	require.NoError(t, json.Unmarshal(res.Body.Bytes(), v))
}

// RequireHTTPError asserts the response carries the expected status code.
func RequireHTTPError(t *testing.T, res *httptest.ResponseRecorder, code int) {
	t.Helper()

	require.Equal(t, code, res.Result().StatusCode, "unexpected status, body: %s", res.Body.String())
}
