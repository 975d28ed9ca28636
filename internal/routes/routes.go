package routes

import (
	"github.com/arnold/steady-api/internal/handlers"
	"github.com/arnold/steady-api/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func Setup(app *fiber.App, h *handlers.Handler, hub *handlers.Hub, secret string) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	protected := api.Group("/", middleware.Protected(secret))

	goals := protected.Group("/goals")
	goals.Get("/", h.GetGoals)
	goals.Post("/", h.CreateGoal)
	goals.Get("/summary", h.GetSummaries)
	goals.Put("/:id", h.UpdateGoal)
	goals.Delete("/:id", h.DeleteGoal)

	protected.Get("/views/:context", h.GetView)
	protected.Post("/instances/toggle", h.ToggleInstance)

	reorder := protected.Group("/reorder")
	reorder.Get("/", h.GetReorder)
	reorder.Post("/begin", h.BeginReorder)
	reorder.Post("/move", h.MoveGoal)
	reorder.Post("/commit", h.CommitReorder)
	reorder.Post("/cancel", h.CancelReorder)

	// WebSocket for real-time goal updates
	app.Use("/ws", handlers.WebSocketUpgrade(secret))
	app.Get("/ws/goals", websocket.New(hub.HandleWebSocket))
}
