package api

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github/finchase/go-signing/internal/config"
	"github/finchase/go-signing/internal/metrics"
	"github/finchase/go-signing/internal/signing/backend"
	"github/finchase/go-signing/internal/signing/intent"
	"github/finchase/go-signing/internal/signing/nonce"
	"github/finchase/go-signing/internal/signing/wallet"
)

// WalletService is the slice of the wallet registry the handlers consume.
type WalletService = wallet.Service

// Server is the central struct keeping all the dependencies. Components are
// constructed once at startup by the server command and bound here
// explicitly; handlers only ever reach them through this struct.
type Server struct {
	Config config.Server

	// DB is nil when the service runs on the in-memory stores (dev mode).
	DB *sql.DB

	Echo   *echo.Echo `json:"-"`
	Router *Router    `json:"-"`

	Metrics    *metrics.Service
	Backend    backend.Backend
	Wallet     WalletService
	Nonce      *nonce.Allocator
	Intent     *intent.Verifier
	Permission *intent.PermissionVerifier
}

// NewServer returns a Server carrying only its config; the caller binds the
// remaining components before InitRouter.
func NewServer(cfg config.Server) *Server {
	return &Server{Config: cfg}
}

// Ready reports whether all required components are bound.
func (s *Server) Ready() bool {
	return s.Echo != nil &&
		s.Backend != nil &&
		s.Wallet != nil &&
		s.Nonce != nil &&
		s.Intent != nil &&
		s.Permission != nil
}

// Start begins listening; blocks until Shutdown or failure.
func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not fully initialized")
	}
	return s.Echo.Start(s.Config.Echo.ListenAddress)
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Warn().Msg("Shutting down server")

	if s.Echo != nil {
		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "failed to shut down echo")
		}
	}

	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database connection")
		}
	}

	return nil
}
