package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MatiasHerrera/PagoLink/app/controllers"
)

// WebhookRouter installs the unauthenticated provider-notification intake.
// Authenticity is established by signature verification inside the handler,
// not by the API-key middleware.
type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/mercadopago", controllers.HandleProviderWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
