package router

import (
	"github.com/labstack/echo/v4"

	"agromart/internal/adapter/api/handler"
)

// SetupWebSocketRouter mounts the realtime endpoint. Authentication
// happens inside the handler because the token arrives in the query
// string, not a header.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws", wsHandler.HandleWebSocket)
}
