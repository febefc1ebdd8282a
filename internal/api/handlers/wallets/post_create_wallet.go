package wallets

import (
	"net/http"
	"time"

	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/api/httperrors"
	"github/finchase/go-signing/internal/signing/wallet"
	"github/finchase/go-signing/internal/util"
)

// WalletResponse is the public wallet representation.
type WalletResponse struct {
	ID         string     `json:"id"`
	OwnerRef   string     `json:"ownerRef"`
	Purpose    string     `json:"purpose"`
	Address    string     `json:"address"`
	Provider   string     `json:"provider"`
	IsActive   bool       `json:"isActive"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

func toWalletResponse(w *wallet.Wallet) *WalletResponse {
	return &WalletResponse{
		ID:         w.ID,
		OwnerRef:   w.OwnerRef,
		Purpose:    string(w.Purpose),
		Address:    w.Address.Hex(),
		Provider:   string(w.Provider),
		IsActive:   w.IsActive,
		CreatedAt:  w.CreatedAt,
		LastUsedAt: w.LastUsedAt,
	}
}

// PostCreateWalletPayload is the create/get-or-create request body.
type PostCreateWalletPayload struct {
	OwnerRef    *string `json:"ownerRef"`
	Purpose     string  `json:"purpose"`
	Label       string  `json:"label"`
	GetOrCreate *bool   `json:"getOrCreate"`
}

// Validate implements util.Validatable.
func (p *PostCreateWalletPayload) Validate() []*httperrors.HTTPValidationErrorDetail {
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

func PostCreateWalletRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Wallets.POST("", postCreateWalletHandler(s))
}

func postCreateWalletHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body PostCreateWalletPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		purpose := wallet.Purpose(body.Purpose)
		if purpose == "" {
			purpose = wallet.PurposeAutomation
		}

		owner := swag.StringValue(body.OwnerRef)

		var (
			w   *wallet.Wallet
			err error
		)
		if util.FalseIfNil(body.GetOrCreate) {
			w, err = s.Wallet.GetOrCreate(ctx, owner, purpose, body.Label)
		} else {
			w, err = s.Wallet.Create(ctx, owner, purpose, body.Label)
		}
		if err != nil {
			if errors.Is(err, wallet.ErrWalletExists) {
				return httperrors.ErrConflictWallet
			}
			log.Error().Err(err).Msg("Failed to create wallet")
			return err
		}

		return c.JSON(http.StatusOK, toWalletResponse(w))
	}
}
