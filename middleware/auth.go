// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"instacam-backend/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// TokenAuth resolves the Authorization header ("Token <key>" or
// "Bearer <key>") to a user and attaches it via c.Locals("user"). When
// required is false the request proceeds anonymously on a missing or bad
// token — the CTF endpoints want anonymous callers too.
func TokenAuth(db *gorm.DB, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		key := ""
		for _, scheme := range []string{"Token ", "Bearer "} {
			if strings.HasPrefix(header, scheme) {
				key = strings.TrimSpace(strings.TrimPrefix(header, scheme))
				break
			}
		}

		if key == "" {
			if required {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authentication required."})
			}
			return c.Next()
		}

		var token models.AuthToken
		if err := db.Preload("User").Where("key = ?", key).First(&token).Error; err != nil {
			if required {
				log.Printf("❌ [AUTH] rejected unknown token on %s", c.Path())
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token."})
			}
			return c.Next()
		}

		c.Locals("user", &token.User)
		return c.Next()
	}
}
