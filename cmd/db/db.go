package db

import (
	"github.com/spf13/cobra"

	"github/finchase/go-signing/internal/util/command"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("db",
		newMigrate(),
	)
}
