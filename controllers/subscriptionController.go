package controllers

import (
	"fmt"

	"newsletter-backend/email"
	"newsletter-backend/middlewares"
	"newsletter-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type subscribeDTO struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required"`
}

// Subscribe creates a pending subscription and sends the confirmation link.
// The confirmation email is best-effort: the subscription row is the source
// of truth, a failed send just means the subscriber re-submits the form.
func Subscribe(db *gorm.DB, sender email.Sender, confirmBaseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var dto subscribeDTO
		if err := middlewares.BindAndValidate(c, &dto); err != nil {
			return err
		}

		sub := models.Subscription{
			Email:  dto.Email,
			Name:   dto.Name,
			Status: models.SubscriptionPending,
		}
		if err := db.Create(&sub).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "could not create subscription")
		}

		link := fmt.Sprintf("%s/api/subscriptions/confirm?token=%s", confirmBaseURL, sub.ConfirmationToken)
		err := sender.Send(c.Context(), sub.Email, "Please confirm your subscription",
			fmt.Sprintf(`Welcome! Click <a href="%s">here</a> to confirm your subscription.`, link),
			fmt.Sprintf("Welcome! Visit %s to confirm your subscription.", link),
		)
		if err != nil {
			log.Warn().Err(err).Str("email", sub.Email).Msg("confirmation email failed")
		}

		c.Status(fiber.StatusCreated)
		return c.JSON(fiber.Map{"message": "confirmation email sent", "id": sub.Id})
	}
}

// ConfirmSubscription flips a pending subscription to confirmed; only
// confirmed subscribers are fanned out to when an issue is published.
func ConfirmSubscription(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing confirmation token")
		}

		res := db.Model(&models.Subscription{}).
			Where("confirmation_token = ?", token).
			Update("status", models.SubscriptionConfirmed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fiber.NewError(fiber.StatusUnauthorized, "unknown confirmation token")
		}

		return c.JSON(fiber.Map{"message": "subscription confirmed"})
	}
}
