// handlers/chat_routes.go
package handlers

import (
	"instacam-backend/middleware"
	"instacam-backend/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupChatRoutes(app *fiber.App, db *gorm.DB, chatService *services.ChatService) {
	chat := app.Group("/api/chat", middleware.TokenAuth(db, true))

	chat.Get("/threads", chatService.ThreadList)
	chat.Post("/threads", chatService.StartThread)
	chat.Post("/threads/:id/accept", chatService.AcceptThread)
	chat.Post("/threads/:id/messages", chatService.SendMessage)

	// Legacy endpoint kept alongside the checked one: no participant check
	chat.Get("/threads/:id/messages", chatService.VulnerableMessageList)
	chat.Get("/conversations/:id/messages", chatService.MessageList)

	chat.Get("/debug/threads", chatService.DebugThreads)
}
