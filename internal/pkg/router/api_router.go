package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MatiasHerrera/PagoLink/app/controllers"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", middleware.APIKeyAuthMiddleware())

	v1 := api.Group("/v1")
	v1.Post("/payments", controllers.HandleCreatePayment)
	v1.Get("/payments", controllers.HandleListPayments)
	v1.Get("/payments/:id", controllers.HandleGetPayment)

	v1.Post("/subscriptions", controllers.HandleCreateSubscription)
	v1.Get("/subscriptions", controllers.HandleListSubscriptions)
	v1.Post("/subscriptions/:id/cancel", controllers.HandleCancelSubscription)

	v1.Get("/plans", controllers.HandleListPlans)
	v1.Post("/plans", middleware.RequireAdmin, controllers.HandleCreatePlan)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
