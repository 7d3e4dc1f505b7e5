// handlers/post_routes.go
package handlers

import (
	"instacam-backend/middleware"
	"instacam-backend/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupPostRoutes(app *fiber.App, db *gorm.DB, postService *services.PostService) {
	posts := app.Group("/api/posts")

	// 🔓 Public timeline and image serving — anonymous hits still count for
	// the privacy exercise, so the optional auth variant is used
	posts.Get("/", middleware.TokenAuth(db, false), postService.ListPosts)
	posts.Get("/:id/image", middleware.TokenAuth(db, false), postService.ServePostImage)

	// 🔐 Auth required
	secured := posts.Group("/", middleware.TokenAuth(db, true))
	secured.Get("/feed", postService.Feed)
	secured.Get("/mine", postService.MyPosts)
	secured.Get("/private", postService.PrivatePosts)
	secured.Get("/saved", postService.SavedPosts)
	secured.Post("/", postService.CreatePost)
	secured.Get("/:id", postService.GetPost)
	secured.Delete("/:id", postService.DeletePost)
	secured.Get("/:id/stats", postService.PostStats)
	secured.Post("/:id/like", postService.LikeToggle)
	secured.Post("/:id/save", postService.SaveToggle)
	secured.Get("/:id/comments", postService.ListComments)
	secured.Post("/:id/comments", postService.CreateComment)
	secured.Delete("/:id/comments/:commentId", postService.DeleteComment)

	// Profile grid lives under the user namespace but is post data.
	app.Get("/api/users/:username/posts", middleware.TokenAuth(db, true), postService.UserPosts)
}
