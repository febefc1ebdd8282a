package intents

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/api/httperrors"
	"github/finchase/go-signing/internal/signing/intent"
	"github/finchase/go-signing/internal/util"
)

// PostVerifyIntentPayload is a signed one-shot intent submitted for
// verification.
type PostVerifyIntentPayload struct {
	IntentType *string                   `json:"intentType"`
	ChainID    *int64                    `json:"chainId"`
	Signer     *string                   `json:"signer"`
	Nonce      *uint64                   `json:"nonce"`
	ExpiresAt  *strfmt.DateTime          `json:"expiresAt"`
	Message    apitypes.TypedDataMessage `json:"message"`
	Signature  *string                   `json:"signature"` // 0x-hex, 65 bytes
}

// Validate implements util.Validatable.
func (p *PostVerifyIntentPayload) Validate() []*httperrors.HTTPValidationErrorDetail {
	var details []*httperrors.HTTPValidationErrorDetail

	appendDetail := func(key, msg string) {
		details = append(details, &httperrors.HTTPValidationErrorDetail{
			Key:   swag.String(key),
			In:    swag.String("body"),
			Error: swag.String(msg),
		})
	}

	if swag.StringValue(p.IntentType) == "" {
		appendDetail("intentType", "must not be empty")
	}
	if signer := swag.StringValue(p.Signer); signer == "" || !common.IsHexAddress(signer) {
		appendDetail("signer", "must be a hex address")
	}
	if swag.StringValue(p.Signature) == "" {
		appendDetail("signature", "must not be empty")
	}
	if p.Message == nil {
		appendDetail("message", "must not be empty")
	}

	return details
}

func (p *PostVerifyIntentPayload) toSignedIntent() (*intent.SignedIntent, error) {
	sig, err := util.DecodeHex(swag.StringValue(p.Signature))
	if err != nil {
		return nil, err
	}

	si := &intent.SignedIntent{
		IntentType: swag.StringValue(p.IntentType),
		ChainID:    swag.Int64Value(p.ChainID),
		Signer:     swag.StringValue(p.Signer),
		Nonce:      swag.Uint64Value(p.Nonce),
		Message:    p.Message,
		Signature:  sig,
	}
	if p.ExpiresAt != nil {
		t := time.Time(*p.ExpiresAt)
		si.ExpiresAt = &t
	}
	return si, nil
}

// VerificationResponse is the structured verification outcome.
type VerificationResponse struct {
	Valid  bool   `json:"valid"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
	Signer string `json:"signer,omitempty"`
}

func toVerificationResponse(res *intent.Result) *VerificationResponse {
	out := &VerificationResponse{
		Valid:  res.Valid,
		Code:   string(res.Code),
		Reason: res.Reason,
	}
	if res.Signer != (common.Address{}) {
		out.Signer = res.Signer.Hex()
	}
	return out
}

func PostVerifyIntentRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Intents.POST("/verify", postVerifyIntentHandler(s))
}

func postVerifyIntentHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var body PostVerifyIntentPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		si, err := body.toSignedIntent()
		if err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeGeneric, "Signature must be hex encoded.")
		}

		res, err := s.Intent.Verify(ctx, si)
		if err != nil {
			return err
		}

		s.Metrics.IntentVerificationsTotal.WithLabelValues("generic", metricCode(res)).Inc()

		return c.JSON(http.StatusOK, toVerificationResponse(res))
	}
}

// metricCode keeps the code label non-empty for accepted intents.
func metricCode(res *intent.Result) string {
	if res.Valid {
		return "ok"
	}
	return string(res.Code)
}
