// handlers/auth_routes.go
package handlers

import (
	"instacam-backend/middleware"
	"instacam-backend/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupAuthRoutes(app *fiber.App, db *gorm.DB, authService *services.AuthService) {
	auth := app.Group("/api/auth")

	// 🔓 Public routes
	auth.Post("/register", authService.Register)
	auth.Post("/login", authService.Login)
	auth.Post("/forgot-password", authService.ForgotPassword)
	auth.Get("/reset-password/:uidb64/:token/verify", middleware.TokenAuth(db, false), authService.VerifyResetToken)
	auth.Post("/reset-password/:uidb64/:token", middleware.TokenAuth(db, false), authService.ResetPassword)

	// 🔐 Auth required
	auth.Post("/logout", middleware.TokenAuth(db, true), authService.Logout)
}
