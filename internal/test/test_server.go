// Package test provides server and request helpers for handler tests.
package test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/api/handlers"
	"github/finchase/go-signing/internal/config"
	"github/finchase/go-signing/internal/metrics"
	"github/finchase/go-signing/internal/signing/backend/local"
	"github/finchase/go-signing/internal/signing/intent"
	"github/finchase/go-signing/internal/signing/keybox"
	"github/finchase/go-signing/internal/signing/nonce"
	"github/finchase/go-signing/internal/signing/wallet"
	"github/finchase/go-signing/internal/store/memory"
)

// TestMasterSecret protects locally stored test keys. Test-only value.
const TestMasterSecret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// DefaultTestConfig returns a server config suitable for in-process tests:
// local provider, in-memory stores, no redis.
func DefaultTestConfig() config.Server {
	cfg := config.DefaultServiceConfigFromEnv()
	cfg.Signing.Provider = "local"
	cfg.Signing.LocalMasterSecret = TestMasterSecret
	cfg.Signing.DefaultChainID = 1
	cfg.Redis.Enabled = false
	cfg.Echo.EnableLoggerMiddleware = false
	return cfg
}

// WithTestServer provides a fully wired memory-backed server with all routes
// attached. Key generation is seeded deterministically per test.
func WithTestServer(t *testing.T, closure func(s *api.Server)) {
	t.Helper()
	WithTestServerConfigurable(t, DefaultTestConfig(), closure)
}

// WithTestServerConfigurable is WithTestServer with a caller-supplied config.
func WithTestServerConfigurable(t *testing.T, cfg config.Server, closure func(s *api.Server)) {
	t.Helper()

	s := api.NewServer(cfg)
	s.Metrics = metrics.New()

	box, err := keybox.New(cfg.Signing.LocalMasterSecret)
	require.NoError(t, err)

	//nolint:gosec // deterministic entropy for reproducible test keys
	entropy := rand.New(rand.NewSource(1))

	signingBackend, err := local.New(box, memory.NewKeyStore(), local.WithEntropy(entropy))
	require.NoError(t, err)
	s.Backend = signingBackend

	walletStore := memory.NewWalletStore()

	s.Wallet, err = wallet.NewService(walletStore, signingBackend)
	require.NoError(t, err)

	s.Nonce, err = nonce.New(memory.NewNonceStore(), walletStore)
	require.NoError(t, err)

	s.Intent, err = intent.NewVerifier(intent.NewSchemaRegistry(), memory.NewReplayStore(), cfg.Signing.IntentDomainName, cfg.Signing.IntentDomainVer)
	require.NoError(t, err)

	s.Permission, err = intent.NewPermissionVerifier(cfg.Signing.IntentDomainName, cfg.Signing.IntentDomainVer)
	require.NoError(t, err)

	api.InitRouter(s)
	handlers.AttachAllRoutes(s)

	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
	})

	closure(s)
}
