package router

import (
	"github.com/labstack/echo/v4"

	"agromart/internal/adapter/api/handler"
	"agromart/internal/adapter/api/middleware"
)

// SetupChatRouter mounts the REST facade over the delivery engine. The
// same operations are also reachable over the realtime channel; both
// paths converge in the usecase layer.
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware) {
	chatGroup := e.Group("/v1/chats")
	chatGroup.Use(authMiddleware.Authenticate)

	chatGroup.POST("", chatHandler.CreateChat)
	chatGroup.GET("", chatHandler.GetUserChats)
	chatGroup.GET("/:id", chatHandler.GetChatByID)
	chatGroup.PUT("/:id/read", chatHandler.MarkChatAsRead)

	chatGroup.POST("/:id/messages", chatHandler.SendMessage)
	chatGroup.GET("/:id/messages", chatHandler.GetChatMessages)
	chatGroup.PUT("/:id/messages/:messageId/seen", chatHandler.MarkMessageSeen)
}
