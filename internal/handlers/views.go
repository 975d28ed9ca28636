package handlers

import (
	"cloud.google.com/go/civil"
	"github.com/arnold/steady-api/internal/calendar"
	"github.com/arnold/steady-api/internal/middleware"
	"github.com/arnold/steady-api/internal/models"
	"github.com/arnold/steady-api/internal/tracker"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func (h *Handler) GetView(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	ctxName, err := calendar.ParseContext(c.Params("context"))
	if err != nil {
		return h.fail(c, err, "Unknown context")
	}

	view, err := h.sessions.Session(userID).GetView(c.UserContext(), ctxName)
	if err != nil {
		return h.fail(c, err, "Failed to build view")
	}
	return c.JSON(view)
}

func (h *Handler) ToggleInstance(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req models.ToggleInstanceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.GoalID == uuid.Nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Goal ID is required",
		})
	}
	date, err := civil.ParseDate(req.Date)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid date, expected YYYY-MM-DD",
		})
	}

	key := tracker.Key{GoalID: req.GoalID, Date: date, Index: req.Index}
	if err := h.sessions.Session(userID).ToggleInstance(c.UserContext(), key, req.Completed); err != nil {
		return h.fail(c, err, "Failed to toggle instance")
	}
	return c.JSON(fiber.Map{
		"goalId":    req.GoalID,
		"date":      date,
		"index":     req.Index,
		"completed": req.Completed,
	})
}
