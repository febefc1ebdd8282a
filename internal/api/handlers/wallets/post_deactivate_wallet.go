package wallets

import (
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/api/httperrors"
	"github/finchase/go-signing/internal/signing/wallet"
	"github/finchase/go-signing/internal/util"
)

// PostDeactivateWalletPayload identifies the wallet slot to deactivate.
type PostDeactivateWalletPayload struct {
	OwnerRef *string `json:"ownerRef"`
	Purpose  string  `json:"purpose"`
}

// Validate implements util.Validatable.
func (p *PostDeactivateWalletPayload) Validate() []*httperrors.HTTPValidationErrorDetail {
	var details []*httperrors.HTTPValidationErrorDetail
	if swag.StringValue(p.OwnerRef) == "" {
		details = append(details, &httperrors.HTTPValidationErrorDetail{
			Key:   swag.String("ownerRef"),
			In:    swag.String("body"),
			Error: swag.String("must not be empty"),
		})
	}
	return details
}

// PostDeactivateWalletResponse reports whether a wallet was deactivated.
type PostDeactivateWalletResponse struct {
	Deactivated bool `json:"deactivated"`
}

func PostDeactivateWalletRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Wallets.POST("/deactivate", postDeactivateWalletHandler(s))
}

func postDeactivateWalletHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var body PostDeactivateWalletPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		purpose := wallet.Purpose(body.Purpose)
		if purpose == "" {
			purpose = wallet.PurposeAutomation
		}

		deactivated, err := s.Wallet.Deactivate(ctx, swag.StringValue(body.OwnerRef), purpose)
		if err != nil {
			return err
		}
		if !deactivated {
			return httperrors.ErrNotFoundWallet
		}

		return c.JSON(http.StatusOK, &PostDeactivateWalletResponse{Deactivated: true})
	}
}
