package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	ws "agromart/internal/infrastructure/websocket"
)

type HealthHandler struct {
	wsManager *ws.Manager
}

func NewHealthHandler(wsManager *ws.Manager) *HealthHandler {
	return &HealthHandler{
		wsManager: wsManager,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "Server is running",
		"time":   time.Now().Format(time.RFC3339),
	})
}
