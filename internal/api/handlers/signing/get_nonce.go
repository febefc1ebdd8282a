package signing

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/api/httperrors"
	"github/finchase/go-signing/internal/signing/nonce"
)

// GetNonceResponse reports the nonce the next allocation would hand out.
type GetNonceResponse struct {
	WalletID  string `json:"walletId"`
	ChainID   int64  `json:"chainId"`
	NextNonce uint64 `json:"nextNonce"`
}

func GetNonceRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Signing.GET("/nonce/:walletId", getNonceHandler(s))
}

func getNonceHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		walletID := c.Param("walletId")
		chainID := s.Config.Signing.DefaultChainID
		if raw := c.QueryParam("chainId"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed <= 0 {
				return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeGeneric, "Invalid chain id.")
			}
			chainID = parsed
		}

		next, err := s.Nonce.Peek(ctx, walletID, chainID)
		if err != nil {
			if errors.Is(err, nonce.ErrNoWallet) {
				return httperrors.ErrNotFoundNonce
			}
			return err
		}

		return c.JSON(http.StatusOK, &GetNonceResponse{
			WalletID:  walletID,
			ChainID:   chainID,
			NextNonce: next,
		})
	}
}
