package routes

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arnold/steady-api/internal/engine"
	"github.com/arnold/steady-api/internal/feed"
	"github.com/arnold/steady-api/internal/handlers"
	"github.com/arnold/steady-api/internal/middleware"
	"github.com/arnold/steady-api/internal/store"
	"github.com/arnold/steady-api/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	st := store.New(testutil.NewDB(t), feed.NewBroker())
	hub := handlers.NewHub(log)
	sessions := engine.NewManager(st, hub, log, engine.Options{})
	t.Cleanup(sessions.Close)

	app := fiber.New()
	Setup(app, handlers.New(st, sessions, log), hub, "routes-secret")
	return app
}

func TestSetup(t *testing.T) {
	app := newApp(t)
	token, err := middleware.GenerateToken("routes-secret", uuid.New(), "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		auth   bool
		status int
	}{
		{"health", "GET", "/health", false, fiber.StatusOK},
		{"goals without token", "GET", "/api/goals", false, fiber.StatusUnauthorized},
		{"goals", "GET", "/api/goals", true, fiber.StatusOK},
		{"view", "GET", "/api/views/week", true, fiber.StatusOK},
		{"summary", "GET", "/api/goals/summary", true, fiber.StatusOK},
		{"reorder state", "GET", "/api/reorder", true, fiber.StatusOK},
		{"cancel when clean", "POST", "/api/reorder/cancel", true, fiber.StatusConflict},
		{"websocket without upgrade", "GET", "/ws/goals", false, fiber.StatusUpgradeRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
