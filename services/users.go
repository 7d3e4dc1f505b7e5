// services/users.go
package services

import (
	"log"
	"strings"

	"instacam-backend/models"
	"instacam-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type UserService struct {
	DB  *gorm.DB
	CTF *CTFService
}

func NewUserService(db *gorm.DB, ctf *CTFService) *UserService {
	return &UserService{DB: db, CTF: ctf}
}

func (s *UserService) userCounts(userID uint) (posts, followers, following int64) {
	s.DB.Model(&models.Post{}).Where("user_id = ?", userID).Count(&posts)
	s.DB.Model(&models.Follow{}).Where("following_id = ?", userID).Count(&followers)
	s.DB.Model(&models.Follow{}).Where("follower_id = ?", userID).Count(&following)
	return
}

// Me returns the caller's own profile.
func (s *UserService) Me(c *fiber.Ctx) error {
	user := CurrentUser(c)
	posts, followers, following := s.userCounts(user.ID)

	return c.JSON(fiber.Map{
		"id":                  user.ID,
		"username":            user.Username,
		"email":               user.Email,
		"bio":                 user.Bio,
		"profile_picture_url": user.ProfilePictureURL,
		"points":              user.Points,
		"bugs_solved":         user.BugsSolved,
		"post_count":          posts,
		"follower_count":      followers,
		"following_count":     following,
	})
}

// formField reports both the value and whether the field was sent at all, so
// an explicit empty value can clear a column.
func formField(c *fiber.Ctx, key string) (string, bool) {
	if form, err := c.MultipartForm(); err == nil && form != nil {
		if vals, ok := form.Value[key]; ok && len(vals) > 0 {
			return vals[0], true
		}
	}
	if c.Request().PostArgs().Has(key) {
		return c.FormValue(key), true
	}
	return "", false
}

// UpdateMe patches the caller's bio and profile picture.
func (s *UserService) UpdateMe(c *fiber.Ctx) error {
	user := CurrentUser(c)

	updates := map[string]interface{}{}
	if bio, ok := formField(c, "bio"); ok {
		updates["bio"] = SanitizeText(bio)
	}
	if file, err := c.FormFile("profile_picture"); err == nil {
		url, serr := utils.StoreMedia(file, "profiles")
		if serr != nil {
			log.Printf("❌ [USERS] failed to store profile picture: %v", serr)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to store profile picture."})
		}
		updates["profile_picture_url"] = url
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Nothing to update."})
	}

	if err := s.DB.Model(user).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update profile."})
	}
	return s.Me(c)
}

// Profile returns a public view of another user by username.
func (s *UserService) Profile(c *fiber.Ctx) error {
	viewer := CurrentUser(c)

	var user models.User
	if err := s.DB.Where("username = ?", c.Params("username")).First(&user).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found."})
	}
	posts, followers, following := s.userCounts(user.ID)

	out := fiber.Map{
		"id":                  user.ID,
		"username":            user.Username,
		"bio":                 user.Bio,
		"profile_picture_url": user.ProfilePictureURL,
		"points":              user.Points,
		"bugs_solved":         user.BugsSolved,
		"post_count":          posts,
		"follower_count":      followers,
		"following_count":     following,
	}
	if viewer != nil {
		var count int64
		s.DB.Model(&models.Follow{}).
			Where("follower_id = ? AND following_id = ?", viewer.ID, user.ID).
			Count(&count)
		out["is_following"] = count > 0
	}
	return c.JSON(out)
}

// SearchUsers matches usernames against the query. The query is screened
// against both injection families before it reaches the database; XPath
// signatures go first since its syntax is the more specific of the two, and
// a flagged query never reaches the search itself.
func (s *UserService) SearchUsers(c *fiber.Ctx) error {
	query := c.Query("q")
	if strings.TrimSpace(query) == "" {
		return c.JSON(fiber.Map{"users": []fiber.Map{}})
	}

	if DetectXPathInjection(query) {
		log.Printf("🚨 [CTF] XPath injection payload in search: %q", query)
		return s.CTF.Trigger(c, ExploitCheck{
			BugTitle:    "XPath Injection in User Search",
			BugType:     "XPath Injection",
			Points:      100,
			Description: "You discovered an XPath injection vulnerability in the user search!",
		}, fiber.Map{"query": query})
	}
	if DetectSQLInjection(query) {
		log.Printf("🚨 [CTF] SQL injection payload in search: %q", query)
		return s.CTF.Trigger(c, ExploitCheck{
			BugTitle:    "SQL Injection in User Search",
			BugType:     "SQL Injection",
			Points:      100,
			Description: "You discovered a SQL injection vulnerability in the user search!",
		}, fiber.Map{"query": query})
	}

	var users []models.User
	if err := s.DB.
		Where("LOWER(username) LIKE LOWER(?)", "%"+query+"%").
		Order("username ASC").
		Limit(20).
		Find(&users).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Search failed."})
	}

	out := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		out = append(out, fiber.Map{
			"id":                  u.ID,
			"username":            u.Username,
			"bio":                 u.Bio,
			"profile_picture_url": u.ProfilePictureURL,
		})
	}
	return c.JSON(fiber.Map{"users": out})
}

// FollowToggle follows or unfollows a user by username.
func (s *UserService) FollowToggle(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var target models.User
	if err := s.DB.Where("username = ?", c.Params("username")).First(&target).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found."})
	}
	if target.ID == user.ID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "You cannot follow yourself."})
	}

	var existing models.Follow
	err := s.DB.Where("follower_id = ? AND following_id = ?", user.ID, target.ID).First(&existing).Error
	if err == nil {
		s.DB.Delete(&existing)
		return c.JSON(fiber.Map{"following": false, "message": "Unfollowed " + target.Username + "."})
	}

	follow := models.Follow{FollowerID: user.ID, FollowingID: target.ID}
	if err := s.DB.Create(&follow).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to follow user."})
	}
	createNotification(s.DB, user.ID, target.ID, models.NotificationFollow, nil, nil)
	return c.JSON(fiber.Map{"following": true, "message": "Now following " + target.Username + "."})
}
