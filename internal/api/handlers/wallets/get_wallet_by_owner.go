package wallets

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/api/httperrors"
	"github/finchase/go-signing/internal/signing/wallet"
)

func GetWalletByOwnerRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Wallets.GET("/:ownerRef", getWalletByOwnerHandler(s))
}

func getWalletByOwnerHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		owner := c.Param("ownerRef")
		purpose := wallet.Purpose(c.QueryParam("purpose"))
		if purpose == "" {
			purpose = wallet.PurposeAutomation
		}

		w, err := s.Wallet.GetByOwner(ctx, owner, purpose)
		if err != nil {
			if errors.Is(err, wallet.ErrWalletNotFound) {
				return httperrors.ErrNotFoundWallet
			}
			return err
		}

		return c.JSON(http.StatusOK, toWalletResponse(w))
	}
}
