package server

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/api/handlers"
	"github/finchase/go-signing/internal/config"
	"github/finchase/go-signing/internal/metrics"
	"github/finchase/go-signing/internal/signing"
	"github/finchase/go-signing/internal/signing/backend/local"
	"github/finchase/go-signing/internal/signing/intent"
	"github/finchase/go-signing/internal/signing/nonce"
	"github/finchase/go-signing/internal/signing/wallet"
	"github/finchase/go-signing/internal/store/memory"
	"github/finchase/go-signing/internal/store/postgres"
	"github/finchase/go-signing/internal/store/redis"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Starts the signing server",
		Long: `Starts the signing server.
Requires configuration through ENV and
a fully migrated PostgreSQL database (unless DB_ENABLED=false).`,
		Run: func(_ *cobra.Command, _ []string) {
			runServer()
		},
	}
}

func runServer() {
	cfg := config.DefaultServiceConfigFromEnv()

	zerolog.SetGlobalLevel(cfg.Logger.Level)
	if cfg.Logger.PrettyPrintConsole {
		log.Logger = log.Output(zerolog.NewConsoleWriter())
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid signing configuration")
	}

	ctx := context.Background()

	s, err := initServer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	api.InitRouter(s)
	handlers.AttachAllRoutes(s)

	go func() {
		if err := s.Start(); err != nil {
			log.Error().Err(err).Msg("Server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Echo.GracePeriod)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to gracefully shut down server")
	}
}

// initServer builds every component explicitly and binds it to the server
// struct. No container, no globals: the wiring below is the whole dependency
// graph.
func initServer(ctx context.Context, cfg config.Server) (*api.Server, error) {
	s := api.NewServer(cfg)
	s.Metrics = metrics.New()

	var (
		keyStore    local.KeyStore
		walletStore wallet.Store
		nonceStore  nonce.Store
		replayStore intent.ReplayStore
		checker     nonce.WalletChecker
	)

	if dbEnabled() {
		db, err := sql.Open("postgres", cfg.Database.ConnectionString())
		if err != nil {
			return nil, errors.Wrap(err, "failed to open database connection")
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to ping database")
		}

		pg, err := postgres.New(db)
		if err != nil {
			return nil, err
		}

		s.DB = db
		keyStore = pg
		walletStore = pg
		nonceStore = pg
		replayStore = pg
		checker = pg
	} else {
		log.Warn().Msg("Database disabled, using volatile in-memory stores")

		walletMem := memory.NewWalletStore()
		keyStore = memory.NewKeyStore()
		walletStore = walletMem
		nonceStore = memory.NewNonceStore()
		replayStore = memory.NewReplayStore()
		checker = walletMem
	}

	// Redis moves the per-request counters off Postgres; wallets and keys
	// stay relational.
	if cfg.Redis.Enabled {
		rs, err := redis.NewFromURL(cfg.Redis.URL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to redis")
		}
		if err := rs.Ping(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to ping redis")
		}
		nonceStore = rs
		replayStore = rs
	}

	signingBackend, err := signing.NewBackendFromConfig(ctx, cfg.Signing, signing.BackendDeps{
		KeyStore: keyStore,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct signing backend")
	}
	signing.SetDefault(signingBackend)
	s.Backend = signingBackend

	walletService, err := wallet.NewService(walletStore, signingBackend)
	if err != nil {
		return nil, err
	}
	s.Wallet = walletService

	allocator, err := nonce.New(nonceStore, checker)
	if err != nil {
		return nil, err
	}
	s.Nonce = allocator

	verifier, err := intent.NewVerifier(intent.NewSchemaRegistry(), replayStore, cfg.Signing.IntentDomainName, cfg.Signing.IntentDomainVer)
	if err != nil {
		return nil, err
	}
	s.Intent = verifier

	permission, err := intent.NewPermissionVerifier(cfg.Signing.IntentDomainName, cfg.Signing.IntentDomainVer)
	if err != nil {
		return nil, err
	}
	s.Permission = permission

	return s, nil
}

func dbEnabled() bool {
	return os.Getenv("DB_ENABLED") != "false"
}
