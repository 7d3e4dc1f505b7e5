// handlers/user_routes.go
package handlers

import (
	"instacam-backend/middleware"
	"instacam-backend/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupUserRoutes(app *fiber.App, db *gorm.DB, userService *services.UserService, notificationService *services.NotificationService) {
	users := app.Group("/api/users")

	// 🔓 Search accepts anonymous callers: injection payloads from logged-out
	// users become pending discoveries instead of awards
	users.Get("/search", middleware.TokenAuth(db, false), userService.SearchUsers)

	// 🔐 Auth required
	secured := users.Group("/", middleware.TokenAuth(db, true))
	secured.Get("/me", userService.Me)
	secured.Patch("/me", userService.UpdateMe)
	secured.Get("/:username", userService.Profile)
	secured.Post("/:username/follow", userService.FollowToggle)

	notifications := app.Group("/api/notifications", middleware.TokenAuth(db, true))
	notifications.Get("/", notificationService.List)
	notifications.Post("/read-all", notificationService.MarkAllRead)
	notifications.Post("/:id/read", notificationService.MarkRead)
}
