package common_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/test"
)

func TestGetHealthy(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		res := test.PerformRequest(t, s, "GET", "/-/healthy", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)
		require.Equal(t, "Healthy.", res.Body.String())
	})
}

func TestGetReadyReadiness(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		res := test.PerformRequest(t, s, "GET", "/-/ready", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)
		require.Equal(t, "Ready.", res.Body.String())
	})
}

func TestManagementSecret(t *testing.T) {
	cfg := test.DefaultTestConfig()
	cfg.ManagementSecret = "i-am-so-secret"

	test.WithTestServerConfigurable(t, cfg, func(s *api.Server) {
		res := test.PerformRequest(t, s, "GET", "/-/ready", nil, nil)
		require.Equal(t, http.StatusForbidden, res.Result().StatusCode)

		res = test.PerformRequest(t, s, "GET", "/-/ready?mgmt-secret=wrong", nil, nil)
		require.Equal(t, http.StatusForbidden, res.Result().StatusCode)

		res = test.PerformRequest(t, s, "GET", "/-/ready?mgmt-secret=i-am-so-secret", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)
	})
}

func TestGetReadyReadinessBroken(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		// forcefully remove an initialized component to check if ready state works
		s.Backend = nil

		res := test.PerformRequest(t, s, "GET", "/-/ready", nil, nil)
		require.Equal(t, 521, res.Result().StatusCode)
		require.Equal(t, "Not ready.", res.Body.String())
	})
}
