package handlers

import (
	"net/http"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/app"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/http/middleware"
	"github.com/labstack/echo/v4"
)

// SetupRoutes configures all API routes
func SetupRoutes(e *echo.Echo, svc *app.Services) {
	wsHandler := NewWebSocketHandler(svc.AuthService, svc.UserRepo, svc.ChatService)
	authHandler := NewAuthHandler(svc.AuthService)
	userHandler := NewUserHandler(svc.UserRepo, svc.AuthService)
	chatHandler := NewChatHandler(svc.ChatService, svc.UserRepo, wsHandler)
	attachmentHandler := NewAttachmentHandler(svc.StorageService)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":            "ok",
			"websocket_clients": wsHandler.GetConnectedClients(),
		})
	})

	e.GET("/ws", wsHandler.HandleWebSocket)

	api := e.Group("/api/v1")

	// Public surface: login and the website visitor chat entrypoint.
	authGroup := api.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)

	public := api.Group("/public")
	public.POST("/chat/messages", chatHandler.SendPublicMessage)

	// Authenticated surface.
	protected := api.Group("", middleware.JWTAuth(svc.AuthService))
	protected.GET("/auth/me", authHandler.Me)

	chatGroup := protected.Group("/chat")
	chatGroup.POST("/messages", chatHandler.SendMessage)
	chatGroup.DELETE("/messages/:id", chatHandler.DeleteMessage)
	chatGroup.GET("/conversations", chatHandler.GetMyConversations)
	chatGroup.GET("/conversations/:id/messages", chatHandler.GetConversationMessages)
	chatGroup.POST("/conversations/:id/read", chatHandler.MarkConversationRead)
	chatGroup.GET("/unread-count", chatHandler.GetUnreadCount)
	chatGroup.POST("/attachments", attachmentHandler.Upload)

	// Admin surface.
	admin := protected.Group("/admin", middleware.AdminOnly())
	admin.GET("/chat/conversations", chatHandler.GetAdminConversations)
	admin.GET("/users", userHandler.ListUsers)
	admin.POST("/users", userHandler.CreateUser)
}
