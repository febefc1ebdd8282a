package signing

import (
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/api/httperrors"
	"github/finchase/go-signing/internal/signing/nonce"
	"github/finchase/go-signing/internal/util"
)

// PostResetNoncePayload overwrites a wallet's nonce counter. Manual recovery
// after a signed-but-never-broadcast transaction diverged the counter from
// the chain.
type PostResetNoncePayload struct {
	WalletID  *string `json:"walletId"`
	ChainID   *int64  `json:"chainId"`
	NextNonce *uint64 `json:"nextNonce"`
}

// Validate implements util.Validatable.
func (p *PostResetNoncePayload) Validate() []*httperrors.HTTPValidationErrorDetail {
	var details []*httperrors.HTTPValidationErrorDetail

	appendDetail := func(key, msg string) {
		details = append(details, &httperrors.HTTPValidationErrorDetail{
			Key:   swag.String(key),
			In:    swag.String("body"),
			Error: swag.String(msg),
		})
	}

	if swag.StringValue(p.WalletID) == "" {
		appendDetail("walletId", "must not be empty")
	}
	if p.ChainID == nil || *p.ChainID <= 0 {
		appendDetail("chainId", "must be positive")
	}
	if p.NextNonce == nil {
		appendDetail("nextNonce", "is required")
	}

	return details
}

// PostResetNonceResponse echoes the counter state after the reset.
type PostResetNonceResponse struct {
	WalletID  string `json:"walletId"`
	ChainID   int64  `json:"chainId"`
	NextNonce uint64 `json:"nextNonce"`
}

func PostResetNonceRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Signing.POST("/nonce/reset", postResetNonceHandler(s))
}

func postResetNonceHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var body PostResetNoncePayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		walletID := swag.StringValue(body.WalletID)
		chainID := *body.ChainID
		next := *body.NextNonce

		if err := s.Nonce.Reset(ctx, walletID, chainID, next); err != nil {
			if errors.Is(err, nonce.ErrNoWallet) {
				return httperrors.ErrNotFoundNonce
			}
			return err
		}

		return c.JSON(http.StatusOK, &PostResetNonceResponse{
			WalletID:  walletID,
			ChainID:   chainID,
			NextNonce: next,
		})
	}
}
