package handlers

import (
	"github.com/arnold/steady-api/internal/calendar"
	"github.com/arnold/steady-api/internal/middleware"
	"github.com/arnold/steady-api/internal/models"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) GetReorder(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	ctxName, err := calendar.ParseContext(c.Query("context", string(calendar.Today)))
	if err != nil {
		return h.fail(c, err, "Unknown context")
	}

	rv, err := h.sessions.Session(userID).Reorder(c.UserContext(), ctxName)
	if err != nil {
		return h.fail(c, err, "Failed to fetch reorder state")
	}
	return c.JSON(rv)
}

func (h *Handler) BeginReorder(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req models.ReorderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	session := h.sessions.Session(userID)
	if err := session.BeginReorder(c.UserContext(), calendar.Context(req.Context)); err != nil {
		return h.fail(c, err, "Failed to begin reorder")
	}
	return c.JSON(fiber.Map{
		"state": session.ReorderState(),
	})
}

func (h *Handler) MoveGoal(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req models.ReorderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctxName := calendar.Context(req.Context)
	session := h.sessions.Session(userID)
	if err := session.MoveGoal(c.UserContext(), ctxName, req.From, req.To); err != nil {
		return h.fail(c, err, "Failed to move goal")
	}

	rv, err := session.Reorder(c.UserContext(), ctxName)
	if err != nil {
		return h.fail(c, err, "Failed to fetch reorder state")
	}
	return c.JSON(rv)
}

func (h *Handler) CommitReorder(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	if err := h.sessions.Session(userID).CommitReorder(c.UserContext()); err != nil {
		return h.fail(c, err, "Failed to commit reorder")
	}
	return c.JSON(fiber.Map{
		"message": "Order saved",
	})
}

func (h *Handler) CancelReorder(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	if err := h.sessions.Session(userID).CancelReorder(); err != nil {
		return h.fail(c, err, "Failed to cancel reorder")
	}
	return c.JSON(fiber.Map{
		"message": "Reorder cancelled",
	})
}
