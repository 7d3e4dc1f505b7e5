// handlers/ctf_routes.go
package handlers

import (
	"instacam-backend/middleware"
	"instacam-backend/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupCTFRoutes(app *fiber.App, db *gorm.DB, ctfService *services.CTFService) {
	ctf := app.Group("/api/ctf")

	// 🔓 Public scoreboard
	ctf.Get("/leaderboard", ctfService.GetLeaderboard)
	ctf.Get("/bugs", middleware.TokenAuth(db, false), ctfService.GetBugCatalog)

	// 🔐 The role endpoint is the exploit surface itself
	app.Post("/api/users/set-role", middleware.TokenAuth(db, true), ctfService.SetUserRole)
}
