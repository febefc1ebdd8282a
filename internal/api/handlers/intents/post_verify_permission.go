package intents

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/api/httperrors"
	"github/finchase/go-signing/internal/signing/intent"
	"github/finchase/go-signing/internal/util"
)

// PostVerifyPermissionPayload is a signed durable permission grant.
type PostVerifyPermissionPayload struct {
	ID                *string           `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	AllowedCurrencies []intent.Currency `json:"allowedCurrencies"`
	AllowedEffects    []string          `json:"allowedEffects"`
	Strategy          json.RawMessage   `json:"strategyEnvelope"`
	Signer            *string           `json:"signer"`
	Signature         *string           `json:"signature"` // 0x-hex, 65 bytes
}

// Validate implements util.Validatable.
func (p *PostVerifyPermissionPayload) Validate() []*httperrors.HTTPValidationErrorDetail {
	var details []*httperrors.HTTPValidationErrorDetail

	appendDetail := func(key, msg string) {
		details = append(details, &httperrors.HTTPValidationErrorDetail{
			Key:   swag.String(key),
			In:    swag.String("body"),
			Error: swag.String(msg),
		})
	}

	if swag.StringValue(p.ID) == "" {
		appendDetail("id", "must not be empty")
	}
	if signer := swag.StringValue(p.Signer); signer == "" || !common.IsHexAddress(signer) {
		appendDetail("signer", "must be a hex address")
	}
	if swag.StringValue(p.Signature) == "" {
		appendDetail("signature", "must not be empty")
	}
	if len(p.Strategy) == 0 {
		appendDetail("strategyEnvelope", "must not be empty")
	}

	return details
}

func PostVerifyPermissionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Intents.POST("/permissions/verify", postVerifyPermissionHandler(s))
}

func postVerifyPermissionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var body PostVerifyPermissionPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		sig, err := util.DecodeHex(swag.StringValue(body.Signature))
		if err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeGeneric, "Signature must be hex encoded.")
		}

		pi := &intent.PermissionIntent{
			ID:                swag.StringValue(body.ID),
			Name:              body.Name,
			Description:       body.Description,
			AllowedCurrencies: body.AllowedCurrencies,
			AllowedEffects:    body.AllowedEffects,
			Strategy:          body.Strategy,
			Signer:            swag.StringValue(body.Signer),
			Signature:         sig,
		}

		res, err := s.Permission.Verify(ctx, pi)
		if err != nil {
			return err
		}

		s.Metrics.IntentVerificationsTotal.WithLabelValues("permission", metricCode(res)).Inc()

		return c.JSON(http.StatusOK, toVerificationResponse(res))
	}
}
