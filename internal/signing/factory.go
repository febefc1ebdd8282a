// Package signing wires the key-custody backends selected by configuration.
package signing

import (
	"context"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/config"
	"github/finchase/go-signing/internal/signing/backend"
	"github/finchase/go-signing/internal/signing/backend/kms"
	"github/finchase/go-signing/internal/signing/backend/local"
	"github/finchase/go-signing/internal/signing/keybox"
)

// BackendDeps carries the collaborators each backend flavor may need. Only
// the fields relevant for the configured provider are read.
type BackendDeps struct {
	// KeyStore persists locally managed keys (local provider).
	KeyStore local.KeyStore
	// KMSClient overrides the AWS client construction (tests, custom
	// endpoints). When nil and the managed-hsm provider is selected, a
	// client is built from the ambient AWS configuration.
	KMSClient kms.Client
}

// NewBackendFromConfig constructs the configured backend. Called once at
// startup; the result is passed explicitly to every component that signs.
func NewBackendFromConfig(ctx context.Context, cfg config.Signing, deps BackendDeps) (backend.Backend, error) {
	switch backend.Provider(cfg.Provider) {
	case backend.ProviderLocal:
		box, err := keybox.New(cfg.LocalMasterSecret)
		if err != nil {
			return nil, err
		}
		return local.New(box, deps.KeyStore)

	case backend.ProviderManagedHSM:
		client := deps.KMSClient
		if client == nil {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KMS.Region))
			if err != nil {
				return nil, errors.Wrap(err, "failed to load aws configuration")
			}
			client = awskms.NewFromConfig(awsCfg, func(o *awskms.Options) {
				if cfg.KMS.Endpoint != "" {
					o.BaseEndpoint = &cfg.KMS.Endpoint
				}
			})
		}
		return kms.New(client, cfg.KMS.SignTimeout)

	default:
		return nil, errors.Wrapf(backend.ErrConfiguration, "unsupported provider %q", cfg.Provider)
	}
}

var (
	defaultMu      sync.RWMutex
	defaultBackend backend.Backend
)

// SetDefault binds the process-wide backend. Production wiring calls this
// exactly once at startup after NewBackendFromConfig.
func SetDefault(b backend.Backend) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultBackend = b
}

// Default returns the process-wide backend, or an error when none is bound.
func Default() (backend.Backend, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultBackend == nil {
		return nil, errors.Wrap(backend.ErrConfiguration, "no default signing backend bound")
	}
	return defaultBackend, nil
}

// ResetDefaultForTesting unbinds the process-wide backend. Test support
// only; production code never rebinds.
func ResetDefaultForTesting() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultBackend = nil
}
