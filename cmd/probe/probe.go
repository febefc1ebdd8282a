package probe

import (
	"github.com/spf13/cobra"

	"github/finchase/go-signing/internal/util/command"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("probe",
		newLiveness(),
		newReadiness(),
	)
}
