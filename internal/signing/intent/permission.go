package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gowebpki/jcs"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"github/finchase/go-signing/internal/util"
)

// CurrencyKind discriminates the allowed-currency variants.
type CurrencyKind string

const (
	CurrencyKindToken  CurrencyKind = "token"
	CurrencyKindNative CurrencyKind = "native"
)

// NativeAssetSentinel stands in for the missing contract address of the
// native-asset variant once flattened. EIP-712 structs cannot express "no
// address".
var NativeAssetSentinel = common.Address{}

// Currency is one member of a permission grant's allowed-currency list.
// Token currencies carry a contract address; native ones do not.
type Currency struct {
	Kind            CurrencyKind `json:"kind"`
	Symbol          string       `json:"symbol"`
	ContractAddress string       `json:"contractAddress,omitempty"`
	Decimals        uint8        `json:"decimals"`
}

// FlatCurrency is the fully flattened, fixed-shape form every variant maps
// onto before typed-data hashing.
type FlatCurrency struct {
	Kind            CurrencyKind
	Symbol          string
	ContractAddress common.Address
	Decimals        uint8
}

// Flatten maps a currency variant onto the fixed struct, substituting the
// sentinel address for the native variant.
func (c Currency) Flatten() (FlatCurrency, error) {
	switch c.Kind {
	case CurrencyKindToken:
		if !common.IsHexAddress(c.ContractAddress) {
			return FlatCurrency{}, errors.Errorf("token currency %q has invalid contract address %q", c.Symbol, c.ContractAddress)
		}
		return FlatCurrency{
			Kind:            c.Kind,
			Symbol:          c.Symbol,
			ContractAddress: common.HexToAddress(c.ContractAddress),
			Decimals:        c.Decimals,
		}, nil
	case CurrencyKindNative:
		if c.ContractAddress != "" {
			return FlatCurrency{}, errors.Errorf("native currency %q must not carry a contract address", c.Symbol)
		}
		return FlatCurrency{
			Kind:            c.Kind,
			Symbol:          c.Symbol,
			ContractAddress: NativeAssetSentinel,
			Decimals:        c.Decimals,
		}, nil
	default:
		return FlatCurrency{}, errors.Errorf("unknown currency kind %q", c.Kind)
	}
}

// Unflatten reconstructs the variant form. Round-tripping through Flatten
// and Unflatten preserves all fields.
func (f FlatCurrency) Unflatten() Currency {
	c := Currency{
		Kind:     f.Kind,
		Symbol:   f.Symbol,
		Decimals: f.Decimals,
	}
	if f.Kind == CurrencyKindToken {
		c.ContractAddress = f.ContractAddress.Hex()
	}
	return c
}

// PermissionIntent is a durable permission grant. It carries no nonce and no
// expiry: it is verified by signature alone every time it is presented and
// may be re-verified indefinitely.
type PermissionIntent struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	AllowedCurrencies []Currency      `json:"allowedCurrencies"`
	AllowedEffects    []string        `json:"allowedEffects"`
	Strategy          json.RawMessage `json:"strategyEnvelope"`
	Signer            string          `json:"signer"`
	Signature         []byte          `json:"signature"`
}

// StrategyDigest collapses the variably shaped strategy envelope to a fixed
// 32-byte content digest: canonicalize (sorted object keys, stable
// serialization), then Keccak-256. Embedding the digest instead of the raw
// structure keeps the struct definition fixed regardless of strategy type.
func StrategyDigest(raw json.RawMessage) ([32]byte, error) {
	var digest [32]byte
	if len(raw) == 0 {
		return digest, errors.New("strategy envelope is required")
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return digest, errors.Wrap(err, "failed to canonicalize strategy envelope")
	}

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(canonical)
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// permissionTypes is the fixed struct definition for permission grants. The
// union shapes never appear here; they are flattened or digested first.
var permissionTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
	},
	"PermissionGrant": []apitypes.Type{
		{Name: "id", Type: "string"},
		{Name: "name", Type: "string"},
		{Name: "description", Type: "string"},
		{Name: "currencies", Type: "Currency[]"},
		{Name: "effects", Type: "string[]"},
		{Name: "strategyDigest", Type: "bytes32"},
	},
	"Currency": []apitypes.Type{
		{Name: "kind", Type: "string"},
		{Name: "symbol", Type: "string"},
		{Name: "contractAddress", Type: "address"},
		{Name: "decimals", Type: "uint8"},
	},
}

// PermissionVerifier validates durable permission grants. No persistence:
// verification is pure.
type PermissionVerifier struct {
	domainName    string
	domainVersion string
}

// NewPermissionVerifier creates a PermissionVerifier with a fixed domain.
// Grants are not chain-bound; the domain carries name and version only.
func NewPermissionVerifier(domainName, domainVersion string) (*PermissionVerifier, error) {
	if domainName == "" || domainVersion == "" {
		return nil, errors.New("domain name and version are required")
	}
	return &PermissionVerifier{
		domainName:    domainName,
		domainVersion: domainVersion,
	}, nil
}

// Digest computes the EIP-712 digest a grant signer must have signed.
func (p *PermissionVerifier) Digest(pi *PermissionIntent) ([32]byte, error) {
	var zero [32]byte

	currencies := make([]interface{}, 0, len(pi.AllowedCurrencies))
	for _, c := range pi.AllowedCurrencies {
		flat, err := c.Flatten()
		if err != nil {
			return zero, err
		}
		currencies = append(currencies, map[string]interface{}{
			"kind":            string(flat.Kind),
			"symbol":          flat.Symbol,
			"contractAddress": flat.ContractAddress.Hex(),
			"decimals":        strconv.Itoa(int(flat.Decimals)),
		})
	}

	effects := make([]interface{}, 0, len(pi.AllowedEffects))
	for _, e := range pi.AllowedEffects {
		effects = append(effects, e)
	}

	strategyDigest, err := StrategyDigest(pi.Strategy)
	if err != nil {
		return zero, err
	}

	typedData := apitypes.TypedData{
		Types:       permissionTypes,
		PrimaryType: "PermissionGrant",
		Domain: apitypes.TypedDataDomain{
			Name:    p.domainName,
			Version: p.domainVersion,
		},
		Message: apitypes.TypedDataMessage{
			"id":             pi.ID,
			"name":           pi.Name,
			"description":    pi.Description,
			"currencies":     currencies,
			"effects":        effects,
			"strategyDigest": hexutil.Encode(strategyDigest[:]),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return zero, errors.Wrap(err, "failed to hash permission grant")
	}

	var digest [32]byte
	copy(digest[:], hash)
	return digest, nil
}

// Verify checks the grant's shape and signature. Address comparison against
// the claimed signer is case-insensitive.
func (p *PermissionVerifier) Verify(ctx context.Context, pi *PermissionIntent) (*Result, error) {
	log := util.LogFromContext(ctx).With().Str("permission_id", pi.ID).Logger()

	if reason := p.checkSchema(pi); reason != "" {
		return rejected(CodeInvalidSchema, reason), nil
	}

	digest, err := p.Digest(pi)
	if err != nil {
		return rejected(CodeInvalidSchema, err.Error()), nil
	}

	recovered, err := RecoverSigner(digest, pi.Signature)
	if err != nil {
		return rejected(CodeInvalidSignature, err.Error()), nil
	}

	if recovered != common.HexToAddress(pi.Signer) {
		return rejected(CodeSignerMismatch, fmt.Sprintf("recovered %s, claimed %s", recovered.Hex(), pi.Signer)), nil
	}

	log.Debug().Str("signer", recovered.Hex()).Msg("Permission grant verified")

	return &Result{Valid: true, Signer: recovered}, nil
}

func (p *PermissionVerifier) checkSchema(pi *PermissionIntent) string {
	if pi.ID == "" {
		return "id is required"
	}
	if pi.Name == "" {
		return "name is required"
	}
	if len(pi.Signature) != 65 {
		return fmt.Sprintf("signature must be 65 bytes, got %d", len(pi.Signature))
	}
	if !common.IsHexAddress(pi.Signer) {
		return fmt.Sprintf("claimed signer %q is not an address", pi.Signer)
	}
	if len(pi.AllowedCurrencies) == 0 {
		return "at least one allowed currency is required"
	}
	if len(pi.AllowedEffects) == 0 {
		return "at least one allowed effect is required"
	}
	if len(pi.Strategy) == 0 {
		return "strategy envelope is required"
	}
	return ""
}
