package handlers

import (
	"errors"

	"github.com/arnold/steady-api/internal/calendar"
	"github.com/arnold/steady-api/internal/engine"
	"github.com/arnold/steady-api/internal/models"
	"github.com/arnold/steady-api/internal/ordering"
	"github.com/arnold/steady-api/internal/store"
	"github.com/arnold/steady-api/internal/tracker"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Handler serves the goal planning, view and reorder endpoints.
type Handler struct {
	store    *store.GormStore
	sessions *engine.Manager
	log      logrus.FieldLogger
}

func New(st *store.GormStore, sessions *engine.Manager, log logrus.FieldLogger) *Handler {
	return &Handler{store: st, sessions: sessions, log: log}
}

// fail maps engine and store errors onto the API's error responses.
func (h *Handler) fail(c *fiber.Ctx, err error, fallback string) error {
	status, msg := fiber.StatusInternalServerError, fallback
	switch {
	case errors.Is(err, models.ErrInvalidGoal):
		status, msg = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, calendar.ErrUnknownContext):
		status, msg = fiber.StatusBadRequest, "Unknown context"
	case errors.Is(err, ordering.ErrInvalidPosition):
		status, msg = fiber.StatusBadRequest, "Invalid position"
	case errors.Is(err, store.ErrGoalNotFound):
		status, msg = fiber.StatusNotFound, "Goal not found"
	case errors.Is(err, engine.ErrUnknownInstance):
		status, msg = fiber.StatusNotFound, "Instance not found"
	case errors.Is(err, ordering.ErrNotDirty):
		status, msg = fiber.StatusConflict, "No reorder in progress"
	case errors.Is(err, tracker.ErrToggleFailed):
		status, msg = fiber.StatusServiceUnavailable, "Failed to update completion, state was reloaded"
	case errors.Is(err, engine.ErrPartialCommit):
		msg = "Some goals could not be reordered"
	}

	if status >= fiber.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error(msg)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}
