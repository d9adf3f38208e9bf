// Package routes defines the API routing configuration.
// It groups the ingress surface into public probes, the webhook receiver and
// the JWT-protected admin endpoints.
package routes

import (
	"github.com/gofiber/fiber/v2"

	"spiriverse/internal/handlers"
	"spiriverse/internal/middleware"
)

// Deps carries the assembled handlers and the admin signing secret.
type Deps struct {
	Webhook   *handlers.WebhookHandler
	Admin     *handlers.AdminHandler
	Health    *handlers.HealthHandler
	JWTSecret string
}

// SetupRoutes configures all application routes.
func SetupRoutes(app *fiber.App, deps Deps) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Spiriverse payment core",
			"docs":    "/api",
		})
	})

	// Probes stay unauthenticated so the platform can reach them.
	app.Get("/health/live", deps.Health.Live)
	app.Get("/health/ready", deps.Health.Ready)

	api := app.Group("/api")

	// Webhook ingress authenticates with a shared secret header, not JWT.
	api.Post("/webhooks/payment-authorized", deps.Webhook.PaymentAuthorized)

	admin := api.Group("/admin", middleware.AdminAuth(deps.JWTSecret))
	admin.Post("/events/:id/replay", deps.Admin.ReplayEvent)
	admin.Get("/orders/:orderId/charge-events", deps.Admin.ListChargeEvents)
}
