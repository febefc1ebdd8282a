package probe

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newLiveness() *cobra.Command {
	return &cobra.Command{
		Use:   "liveness",
		Short: "Probes the local service for liveness",
		Run: func(_ *cobra.Command, _ []string) {
			if err := probeEndpoint("/-/healthy"); err != nil {
				log.Fatal().Err(err).Msg("Liveness probe failed")
			}
		},
	}
}
