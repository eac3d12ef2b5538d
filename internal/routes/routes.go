package routes

import (
	"github.com/arnold/gutgoals-api/internal/handlers"
	"github.com/arnold/gutgoals-api/internal/metrics"
	"github.com/arnold/gutgoals-api/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func Setup(app *fiber.App, h *handlers.Handler, m *metrics.Metrics) {
	app.Use(middleware.RequestLogger(h.Log))
	if m != nil {
		app.Use(m.Middleware())
		app.Get("/metrics", m.Handler())
	}
	app.Get("/health", handlers.Health)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)

	protected := api.Group("/", middleware.Protected(h.JWTSecret))

	protected.Get("/me", h.GetMe)
	protected.Delete("/me/data", h.ClearUserData)

	// Device token for push notifications
	protected.Post("/device-token", h.RegisterDeviceToken)

	goals := protected.Group("/goals")
	goals.Get("/catalog", h.GetCatalog)
	goals.Get("/queue", h.GetQueue)
	goals.Post("/refresh", h.RefreshGoals)
	goals.Get("/", h.GetGoals)
	goals.Delete("/", h.ClearGoals)
	goals.Delete("/:id", h.DismissGoal)

	logs := protected.Group("/logs")
	logs.Get("/", h.GetLogs)
	logs.Post("/", h.AddLog)
	logs.Get("/weekly-score", h.GetWeeklyScore)

	// WebSocket for goal updates across a user's devices
	app.Use("/ws", h.WebSocketUpgrade())
	app.Get("/ws/goals", websocket.New(h.HandleWebSocket))
}
