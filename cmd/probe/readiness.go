package probe

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github/finchase/go-signing/internal/config"
)

func newReadiness() *cobra.Command {
	return &cobra.Command{
		Use:   "readiness",
		Short: "Probes the local service for readiness",
		Run: func(_ *cobra.Command, _ []string) {
			if err := probeEndpoint("/-/ready"); err != nil {
				log.Fatal().Err(err).Msg("Readiness probe failed")
			}
		},
	}
}

// probeEndpoint hits the given management path on the locally listening
// server and fails on any non-200 answer.
func probeEndpoint(path string) error {
	cfg := config.DefaultServiceConfigFromEnv()

	listen := cfg.Echo.ListenAddress
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	}

	u := url.URL{Scheme: "http", Host: listen, Path: path}
	if cfg.ManagementSecret != "" {
		q := u.Query()
		q.Set("mgmt-secret", cfg.ManagementSecret)
		u.RawQuery = q.Encode()
	}

	client := &http.Client{Timeout: 5 * time.Second}

	res, err := client.Get(u.String())
	if err != nil {
		return errors.Wrap(err, "failed to reach local server")
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("probe returned %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))

	return nil
}
