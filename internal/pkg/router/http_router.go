package router

import (
	"github.com/AmirHossein87/payment-plugins/app/controllers"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Wire controllers to the production gateway service
	controllers.InitializeGatewayController()

	// Processor-facing callback endpoints. POST carries webhook
	// notifications, GET serves the payer returning from checkout.
	callback := app.Group("/modules/gateways/callback")
	callback.Post("/paymenthood", controllers.HandleGatewayWebhook)
	callback.Get("/paymenthood", controllers.HandleGatewayReturn)

	// Admin activation surface
	admin := app.Group("/admin/gateways")
	admin.Get("/paymenthood", controllers.HandleGatewayAdminPage)
	admin.Post("/paymenthood/deactivate", controllers.HandleGatewayDeactivate)

	// Client-area payment flows
	billing := app.Group("/billing")
	billing.Post("/invoices/:id/pay", controllers.HandleInvoicePay)
	billing.Get("/customer-panel", controllers.HandleCustomerPanel)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
