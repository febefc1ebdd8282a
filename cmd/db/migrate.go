package db

import (
	"database/sql"
	"os"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github/finchase/go-signing/internal/config"
)

const defaultMigrationsDir = "./migrations"

func newMigrate() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies all pending database migrations",
		Run: func(_ *cobra.Command, _ []string) {
			if err := applyMigrations(); err != nil {
				log.Fatal().Err(err).Msg("Failed to apply migrations")
			}
		},
	}
}

func applyMigrations() error {
	cfg := config.DefaultServiceConfigFromEnv()

	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return err
	}

	dir := defaultMigrationsDir
	if v := os.Getenv("DB_MIGRATIONS_DIR"); v != "" {
		dir = v
	}

	n, err := migrate.Exec(db, "postgres", &migrate.FileMigrationSource{Dir: dir}, migrate.Up)
	if err != nil {
		return err
	}

	log.Info().Int("migrations", n).Msg("Applied migrations")

	return nil
}
