package signing

import (
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/api/httperrors"
	"github/finchase/go-signing/internal/signing/backend"
	"github/finchase/go-signing/internal/signing/txsigner"
	"github/finchase/go-signing/internal/signing/wallet"
	"github/finchase/go-signing/internal/util"
)

// PostSignTransactionPayload is the legacy transaction signing request. Nonce
// is optional: when absent the service allocates the next one for
// (wallet, chain).
type PostSignTransactionPayload struct {
	OwnerRef *string `json:"ownerRef"`
	Purpose  string  `json:"purpose"`
	ChainID  *int64  `json:"chainId"`
	Nonce    *uint64 `json:"nonce"`
	To       string  `json:"to"`       // empty for contract creation
	Value    string  `json:"value"`    // decimal or 0x-hex wei
	Gas      *uint64 `json:"gas"`
	GasPrice string  `json:"gasPrice"` // decimal or 0x-hex wei
	Data     string  `json:"data"`     // 0x-hex calldata
}

// Validate implements util.Validatable.
func (p *PostSignTransactionPayload) Validate() []*httperrors.HTTPValidationErrorDetail {
	var details []*httperrors.HTTPValidationErrorDetail

	appendDetail := func(key, msg string) {
		details = append(details, &httperrors.HTTPValidationErrorDetail{
			Key:   swag.String(key),
			In:    swag.String("body"),
			Error: swag.String(msg),
		})
	}

	if swag.StringValue(p.OwnerRef) == "" {
		appendDetail("ownerRef", "must not be empty")
	}
	if p.ChainID != nil && *p.ChainID <= 0 {
		appendDetail("chainId", "must be positive")
	}
	if p.To != "" && !common.IsHexAddress(p.To) {
		appendDetail("to", "must be a hex address")
	}
	if p.Gas == nil || *p.Gas == 0 {
		appendDetail("gas", "must be a positive gas limit")
	}
	if _, ok := parseBigInt(p.GasPrice); !ok {
		appendDetail("gasPrice", "must be a decimal or 0x-hex integer")
	}
	if p.Value != "" {
		if _, ok := parseBigInt(p.Value); !ok {
			appendDetail("value", "must be a decimal or 0x-hex integer")
		}
	}

	return details
}

// parseBigInt accepts decimal and 0x-prefixed hex integers.
func parseBigInt(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}

// PostSignTransactionResponse carries the broadcast-ready transaction.
type PostSignTransactionResponse struct {
	Raw      string `json:"raw"`
	TxHash   string `json:"txHash"`
	Nonce    uint64 `json:"nonce"`
	ChainID  int64  `json:"chainId"`
	R        string `json:"r"`
	S        string `json:"s"`
	V        string `json:"v"`
	WalletID string `json:"walletId"`
	Address  string `json:"address"`
}

func PostSignTransactionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Signing.POST("/transaction", postSignTransactionHandler(s))
}

func postSignTransactionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body PostSignTransactionPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		purpose := wallet.Purpose(body.Purpose)
		if purpose == "" {
			purpose = wallet.PurposeAutomation
		}

		w, err := s.Wallet.GetByOwner(ctx, swag.StringValue(body.OwnerRef), purpose)
		if err != nil {
			if errors.Is(err, wallet.ErrWalletNotFound) {
				return httperrors.ErrNotFoundWallet
			}
			return err
		}

		chainID := s.Config.Signing.DefaultChainID
		if body.ChainID != nil {
			chainID = *body.ChainID
		}

		var txNonce uint64
		if body.Nonce != nil {
			txNonce = *body.Nonce
		} else {
			txNonce, err = s.Nonce.AllocateAndIncrement(ctx, w.ID, chainID)
			if err != nil {
				return err
			}
			s.Metrics.NonceAllocationsTotal.WithLabelValues(strconv.FormatInt(chainID, 10)).Inc()
		}

		unsigned := txsigner.UnsignedLegacyTx{
			ChainID: big.NewInt(chainID),
			Nonce:   txNonce,
			Value:   big.NewInt(0),
			Gas:     swag.Uint64Value(body.Gas),
			Data:    []byte{},
		}
		if body.To != "" {
			to := common.HexToAddress(body.To)
			unsigned.To = &to
		}
		if body.Value != "" {
			unsigned.Value, _ = parseBigInt(body.Value)
		}
		unsigned.GasPrice, _ = parseBigInt(body.GasPrice)
		if body.Data != "" {
			unsigned.Data, err = util.DecodeHex(body.Data)
			if err != nil {
				return httperrors.NewHTTPValidationError(http.StatusBadRequest, httperrors.TypeGeneric, "Invalid payload.", []*httperrors.HTTPValidationErrorDetail{{
					Key:   swag.String("data"),
					In:    swag.String("body"),
					Error: swag.String("must be hex encoded"),
				}})
			}
		}

		signed, err := txsigner.SignLegacy(ctx, s.Backend, w.KeyID, unsigned)
		if err != nil {
			s.Metrics.SignaturesTotal.WithLabelValues(string(w.Provider), "error").Inc()
			if errors.Is(err, backend.ErrKeyNotFound) {
				return httperrors.ErrBadRequestKeyID
			}
			log.Error().Err(err).Str("wallet_id", w.ID).Msg("Failed to sign transaction")
			return httperrors.ErrBadGatewaySigning
		}
		s.Metrics.SignaturesTotal.WithLabelValues(string(w.Provider), "success").Inc()

		s.Wallet.TouchLastUsed(ctx, w.ID)

		return c.JSON(http.StatusOK, &PostSignTransactionResponse{
			Raw:      hexutil.Encode(signed.Raw),
			TxHash:   signed.TxHash.Hex(),
			Nonce:    txNonce,
			ChainID:  chainID,
			R:        hexutil.Encode(signed.R[:]),
			S:        hexutil.Encode(signed.S[:]),
			V:        signed.V.String(),
			WalletID: w.ID,
			Address:  w.Address.Hex(),
		})
	}
}
