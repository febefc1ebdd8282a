package intent

import (
	"sync"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

// Schema describes one registered intent type: its EIP-712 struct definition
// and whether the nonce/expiry replay policy applies. Durable grants opt
// out; a future intent type may opt in to both by registering accordingly.
type Schema struct {
	PrimaryType     string
	Types           apitypes.Types
	ReplayProtected bool
}

// SchemaRegistry maps intent type tags to their schemas.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]Schema
}

// NewSchemaRegistry returns a registry seeded with the built-in automation
// intent types.
func NewSchemaRegistry() *SchemaRegistry {
	r := &SchemaRegistry{schemas: make(map[string]Schema)}

	r.MustRegister("automation.deploy", Schema{
		PrimaryType:     "AutomationDeploy",
		ReplayProtected: true,
		Types: apitypes.Types{
			"AutomationDeploy": []apitypes.Type{
				{Name: "signer", Type: "address"},
				{Name: "strategyId", Type: "string"},
				{Name: "amount", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "expiresAt", Type: "uint256"},
			},
		},
	})

	r.MustRegister("automation.close", Schema{
		PrimaryType:     "AutomationClose",
		ReplayProtected: true,
		Types: apitypes.Types{
			"AutomationClose": []apitypes.Type{
				{Name: "signer", Type: "address"},
				{Name: "automationId", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "expiresAt", Type: "uint256"},
			},
		},
	})

	r.MustRegister("automation.withdraw", Schema{
		PrimaryType:     "AutomationWithdraw",
		ReplayProtected: true,
		Types: apitypes.Types{
			"AutomationWithdraw": []apitypes.Type{
				{Name: "signer", Type: "address"},
				{Name: "automationId", Type: "string"},
				{Name: "recipient", Type: "address"},
				{Name: "amount", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "expiresAt", Type: "uint256"},
			},
		},
	})

	return r
}

// Register adds or replaces a schema.
func (r *SchemaRegistry) Register(intentType string, schema Schema) error {
	if intentType == "" {
		return errors.New("intent type is required")
	}
	if schema.PrimaryType == "" {
		return errors.New("primary type is required")
	}
	if _, ok := schema.Types[schema.PrimaryType]; !ok {
		return errors.Errorf("types do not define primary type %q", schema.PrimaryType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[intentType] = schema
	return nil
}

// MustRegister is Register for static seeding; panics on malformed schemas.
func (r *SchemaRegistry) MustRegister(intentType string, schema Schema) {
	if err := r.Register(intentType, schema); err != nil {
		panic(err)
	}
}

// Get looks up a schema by intent type tag.
func (r *SchemaRegistry) Get(intentType string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[intentType]
	return s, ok
}
