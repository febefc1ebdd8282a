// Package handlers attaches all route handlers to the server's router.
package handlers

import (
	"github.com/labstack/echo/v4"

	"github/finchase/go-signing/internal/api"
	"github/finchase/go-signing/internal/api/handlers/common"
	"github/finchase/go-signing/internal/api/handlers/intents"
	"github/finchase/go-signing/internal/api/handlers/signing"
	"github/finchase/go-signing/internal/api/handlers/wallets"
)

// AttachAllRoutes binds every route of the service to the initialized router.
func AttachAllRoutes(s *api.Server) {
	s.Router.Routes = []*echo.Route{
		common.GetHealthyRoute(s),
		common.GetReadyRoute(s),

		wallets.PostCreateWalletRoute(s),
		wallets.GetWalletByOwnerRoute(s),
		wallets.PostDeactivateWalletRoute(s),

		signing.PostSignTransactionRoute(s),
		signing.GetNonceRoute(s),
		signing.PostResetNonceRoute(s),

		intents.PostVerifyIntentRoute(s),
		intents.PostConsumeIntentRoute(s),
		intents.PostVerifyPermissionRoute(s),
	}
}
