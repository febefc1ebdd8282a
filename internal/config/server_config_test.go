package config_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github/finchase/go-signing/internal/config"
)

func TestPrintServiceEnv(t *testing.T) {
	config := config.DefaultServiceConfigFromEnv()
	_, err := json.MarshalIndent(config, "", "  ")

	if err != nil {
		t.Fatal(err)
	}
}

func TestValidateSigningConfig(t *testing.T) {
	cfg := config.DefaultServiceConfigFromEnv()
	cfg.Signing.Provider = "local"

	cfg.Signing.LocalMasterSecret = ""
	require.Error(t, cfg.Validate())

	cfg.Signing.LocalMasterSecret = "not-hex"
	require.Error(t, cfg.Validate())

	cfg.Signing.LocalMasterSecret = "deadbeef" // too short
	require.Error(t, cfg.Validate())

	cfg.Signing.LocalMasterSecret = "0x4d795665727953656372657456616c75654d795665727953656372657456616c"
	require.NoError(t, cfg.Validate())

	cfg.Signing.Provider = "managed-hsm"
	require.NoError(t, cfg.Validate())

	cfg.Signing.Provider = "vault"
	require.Error(t, cfg.Validate())
}
