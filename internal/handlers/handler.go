package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arnold/gutgoals-api/internal/goals"
	"github.com/arnold/gutgoals-api/internal/services"
)

// Handler carries the dependencies shared by every route.
type Handler struct {
	DB        *gorm.DB
	Goals     *goals.Manager
	Scheduler *services.Scheduler
	Hub       *Hub
	JWTSecret string
	Log       *zap.Logger
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
