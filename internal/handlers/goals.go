package handlers

import (
	"github.com/arnold/steady-api/internal/middleware"
	"github.com/arnold/steady-api/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func (h *Handler) GetGoals(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	goals, err := h.sessions.Session(userID).Goals(c.UserContext())
	if err != nil {
		return h.fail(c, err, "Failed to fetch goals")
	}
	return c.JSON(goals)
}

func (h *Handler) CreateGoal(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req models.CreateGoalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Text is required",
		})
	}

	goal := models.Goal{
		UserID:       userID,
		Text:         req.Text,
		GoalType:     req.GoalType,
		Remaining:    req.Remaining,
		TargetDate:   req.TargetDate,
		PeriodicType: req.PeriodicType,
		Link:         req.Link,
		Notes:        req.Notes,
		Instructions: req.Instructions,
	}
	if goal.Remaining == 0 {
		goal.Remaining = 1
	}
	goal.Normalize()
	if err := goal.Validate(); err != nil {
		return h.fail(c, err, "Invalid goal")
	}

	if err := h.store.CreateGoal(c.UserContext(), &goal); err != nil {
		return h.fail(c, err, "Failed to create goal")
	}
	h.refresh(c, userID)
	return c.Status(fiber.StatusCreated).JSON(goal)
}

func (h *Handler) UpdateGoal(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	goalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid goal ID",
		})
	}

	var req models.UpdateGoalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	goal, err := h.store.GetGoal(c.UserContext(), userID, goalID)
	if err != nil {
		return h.fail(c, err, "Failed to fetch goal")
	}

	req.Apply(goal)
	goal.Normalize()
	if err := goal.Validate(); err != nil {
		return h.fail(c, err, "Invalid goal")
	}

	if err := h.store.SaveGoal(c.UserContext(), goal); err != nil {
		return h.fail(c, err, "Failed to update goal")
	}
	h.refresh(c, userID)
	return c.JSON(goal)
}

func (h *Handler) DeleteGoal(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	goalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid goal ID",
		})
	}

	if err := h.store.DeleteGoal(c.UserContext(), userID, goalID); err != nil {
		return h.fail(c, err, "Failed to delete goal")
	}
	h.refresh(c, userID)
	return c.JSON(fiber.Map{
		"message": "Goal deleted",
	})
}

func (h *Handler) GetSummaries(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	sums, err := h.sessions.Session(userID).Summaries(c.UserContext())
	if err != nil {
		return h.fail(c, err, "Failed to compute summaries")
	}
	return c.JSON(sums)
}

// refresh brings the user's session up to date with a planning write it just
// made. The write already succeeded, so a failed re-list is only logged; the
// feed loop catches up.
func (h *Handler) refresh(c *fiber.Ctx, userID uuid.UUID) {
	if err := h.sessions.Session(userID).RefreshGoals(c.UserContext()); err != nil {
		h.log.WithError(err).WithField("user_id", userID).Warn("Failed to refresh goals after write")
	}
}
