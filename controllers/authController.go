package controllers

import (
	"newsletter-backend/middlewares"
	"newsletter-backend/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type loginDTO struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges credentials for a bearer token. The publish endpoint needs
// the authenticated user id to scope idempotency keys.
func Login(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var dto loginDTO
		if err := middlewares.BindAndValidate(c, &dto); err != nil {
			return err
		}

		var user models.User
		if err := db.Where("email = ?", dto.Email).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		if err := user.ComparePassword(dto.Password); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}

		token, err := middlewares.GenerateJWT(user.Id)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{"token": token})
	}
}
