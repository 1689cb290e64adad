package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"newsletter-backend/controllers"
	"newsletter-backend/email"
	"newsletter-backend/idempotency"
	"newsletter-backend/middlewares"
)

// Register wires all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, store *idempotency.Store, sender email.Sender, confirmBaseURL string) {
	api := app.Group("/api")

	// Public endpoints
	api.Post("/login", controllers.Login(db))
	api.Post("/subscriptions", controllers.Subscribe(db, sender, confirmBaseURL))
	api.Get("/subscriptions/confirm", controllers.ConfirmSubscription(db))

	// Protected endpoints (JWT auth)
	protected := api.Group("")
	protected.Use(middlewares.IsAuthenticatedHeader())

	// Publish is idempotent per (user, Idempotency-Key); the handler manages
	// its own transaction via the idempotency store.
	protected.Post("/newsletters", controllers.PublishNewsletter(store))
}
