package intents

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/api/httperrors"
	"github/finchase/go-signing/internal/signing/intent"
	"github/finchase/go-signing/internal/util"
)

func PostConsumeIntentRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Intents.POST("/consume", postConsumeIntentHandler(s))
}

// postConsumeIntentHandler verifies an intent and, when it is accepted, burns
// its nonce so the same intent can never pass again.
func postConsumeIntentHandler(s *api.Server) echo.HandlerFunc {
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

		if res.Valid {
			if err := s.Intent.RecordNonceUsed(ctx, si); err != nil {
				// Lost a consumption race after a clean verification.
				if errors.Is(err, intent.ErrNonceAlreadyUsed) {
					s.Metrics.IntentVerificationsTotal.WithLabelValues("generic", string(intent.CodeNonceUsed)).Inc()
					return httperrors.ErrConflictIntent
				}
				return err
			}
		}

		s.Metrics.IntentVerificationsTotal.WithLabelValues("generic", metricCode(res)).Inc()

		return c.JSON(http.StatusOK, toVerificationResponse(res))
	}
}
