// services/posts.go
package services

import (
	"log"
	"strings"
	"time"

	"instacam-backend/models"
	"instacam-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	saveRaceThreshold = 10
	saveRaceWindow    = 5 * time.Second
)

type PostService struct {
	DB      *gorm.DB
	Tracker *AttemptTracker
	CTF     *CTFService
}

func NewPostService(db *gorm.DB, tracker *AttemptTracker, ctf *CTFService) *PostService {
	return &PostService{DB: db, Tracker: tracker, CTF: ctf}
}

func (s *PostService) serializePost(post *models.Post, viewer *models.User) fiber.Map {
	var likeCount, commentCount int64
	s.DB.Model(&models.Like{}).Where("post_id = ?", post.ID).Count(&likeCount)
	s.DB.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&commentCount)

	out := fiber.Map{
		"id":            post.ID,
		"user_id":       post.UserID,
		"username":      post.User.Username,
		"image_url":     post.ImageURL,
		"caption":       post.Caption,
		"is_private":    post.IsPrivate,
		"like_count":    likeCount,
		"comment_count": commentCount,
		"created_at":    post.CreatedAt,
	}
	if viewer != nil {
		var liked, saved int64
		s.DB.Model(&models.Like{}).Where("user_id = ? AND post_id = ?", viewer.ID, post.ID).Count(&liked)
		s.DB.Model(&models.Save{}).Where("user_id = ? AND post_id = ?", viewer.ID, post.ID).Count(&saved)
		out["is_liked"] = liked > 0
		out["is_saved"] = saved > 0
	}
	return out
}

func (s *PostService) serializePosts(posts []models.Post, viewer *models.User) []fiber.Map {
	out := make([]fiber.Map, 0, len(posts))
	for i := range posts {
		out = append(out, s.serializePost(&posts[i], viewer))
	}
	return out
}

// ListPosts returns the public timeline (private posts excluded).
func (s *PostService) ListPosts(c *fiber.Ctx) error {
	var posts []models.Post
	if err := s.DB.Preload("User").
		Where("is_private = ?", false).
		Order("created_at DESC").
		Limit(100).
		Find(&posts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load posts."})
	}
	return c.JSON(fiber.Map{"posts": s.serializePosts(posts, CurrentUser(c))})
}

// Feed returns posts from the caller and everyone they follow.
func (s *PostService) Feed(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var followedIDs []uint
	s.DB.Model(&models.Follow{}).Where("follower_id = ?", user.ID).Pluck("following_id", &followedIDs)
	followedIDs = append(followedIDs, user.ID)

	var posts []models.Post
	if err := s.DB.Preload("User").
		Where("user_id IN ? AND (is_private = ? OR user_id = ?)", followedIDs, false, user.ID).
		Order("created_at DESC").
		Limit(100).
		Find(&posts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load feed."})
	}
	return c.JSON(fiber.Map{"posts": s.serializePosts(posts, user)})
}

// CreatePost stores the uploaded image and the sanitized caption.
func (s *PostService) CreatePost(c *fiber.Ctx) error {
	user := CurrentUser(c)

	file, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Image file is required."})
	}
	caption := SanitizeText(c.FormValue("caption"))
	isPrivate := c.FormValue("is_private") == "true"

	imageURL, err := utils.StoreMedia(file, "posts")
	if err != nil {
		log.Printf("❌ [POSTS] failed to store image: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to store image."})
	}

	post := models.Post{
		UserID:    user.ID,
		ImageURL:  imageURL,
		Caption:   caption,
		IsPrivate: isPrivate,
	}
	if err := s.DB.Create(&post).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create post."})
	}
	post.User = *user

	log.Printf("✅ [POSTS] %s created post %d (private=%v)", user.Username, post.ID, isPrivate)
	return c.Status(fiber.StatusCreated).JSON(s.serializePost(&post, user))
}

// GetPost returns a single post. Private posts are only visible to their
// owner here; the image endpoint is where the access-control hole lives.
func (s *PostService) GetPost(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var post models.Post
	if err := s.DB.Preload("User").First(&post, "id = ?", c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Post not found."})
	}
	if post.IsPrivate && (user == nil || user.ID != post.UserID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "This post is private."})
	}
	return c.JSON(s.serializePost(&post, user))
}

// DeletePost removes the caller's own post.
func (s *PostService) DeletePost(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var post models.Post
	if err := s.DB.First(&post, "id = ?", c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Post not found."})
	}
	if post.UserID != user.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You can only delete your own posts."})
	}
	if err := s.DB.Delete(&post).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete post."})
	}
	return c.JSON(fiber.Map{"message": "Post deleted."})
}

// MyPosts lists every post owned by the caller, private included.
func (s *PostService) MyPosts(c *fiber.Ctx) error {
	user := CurrentUser(c)
	var posts []models.Post
	if err := s.DB.Preload("User").
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Find(&posts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load posts."})
	}
	return c.JSON(fiber.Map{"posts": s.serializePosts(posts, user)})
}

// PrivatePosts lists only the caller's private posts.
func (s *PostService) PrivatePosts(c *fiber.Ctx) error {
	user := CurrentUser(c)
	var posts []models.Post
	if err := s.DB.Preload("User").
		Where("user_id = ? AND is_private = ?", user.ID, true).
		Order("created_at DESC").
		Find(&posts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load private posts."})
	}
	return c.JSON(fiber.Map{"posts": s.serializePosts(posts, user)})
}

// UserPosts lists a profile's posts for the grid view. Private posts show up
// only when the profile is the caller's own.
func (s *PostService) UserPosts(c *fiber.Ctx) error {
	viewer := CurrentUser(c)

	var target models.User
	if err := s.DB.Where("username = ?", c.Params("username")).First(&target).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found."})
	}

	query := s.DB.Preload("User").Where("user_id = ?", target.ID)
	if viewer == nil || viewer.ID != target.ID {
		query = query.Where("is_private = ?", false)
	}

	var posts []models.Post
	if err := query.Order("created_at DESC").Find(&posts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load posts."})
	}
	return c.JSON(fiber.Map{"posts": s.serializePosts(posts, viewer)})
}

// SavedPosts lists the posts the caller has saved.
func (s *PostService) SavedPosts(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var postIDs []uint
	s.DB.Model(&models.Save{}).Where("user_id = ?", user.ID).Pluck("post_id", &postIDs)

	var posts []models.Post
	if len(postIDs) > 0 {
		if err := s.DB.Preload("User").
			Where("id IN ?", postIDs).
			Order("created_at DESC").
			Find(&posts).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load saved posts."})
		}
	}
	return c.JSON(fiber.Map{"posts": s.serializePosts(posts, user)})
}

// LikeToggle likes or unlikes a post.
func (s *PostService) LikeToggle(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var post models.Post
	if err := s.DB.First(&post, "id = ?", c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Post not found."})
	}

	var existing models.Like
	err := s.DB.Where("user_id = ? AND post_id = ?", user.ID, post.ID).First(&existing).Error
	if err == nil {
		s.DB.Delete(&existing)
		return c.JSON(fiber.Map{"liked": false, "message": "Post unliked."})
	}

	like := models.Like{UserID: user.ID, PostID: post.ID}
	if err := s.DB.Create(&like).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to like post."})
	}
	createNotification(s.DB, user.ID, post.UserID, models.NotificationLike, &post.ID, nil)
	return c.JSON(fiber.Map{"liked": true, "message": "Post liked."})
}

// SaveToggle saves or unsaves a post. The toggle is a read-then-write with
// no locking or upsert, so parallel requests interleave; hammering the
// endpoint fast enough is the discovery.
func (s *PostService) SaveToggle(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var post models.Post
	if err := s.DB.First(&post, "id = ?", c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Post not found."})
	}

	attemptKey := SaveAttemptKey(user.ID, post.ID)
	count := s.Tracker.RecordAndCount(attemptKey, saveRaceWindow)
	if count >= saveRaceThreshold {
		log.Printf("🚨 [CTF] race condition triggered: %d rapid save toggles by %s on post %d", count, user.Username, post.ID)
		s.Tracker.Clear(attemptKey)
		return s.CTF.Trigger(c, ExploitCheck{
			BugTitle:    "Race Condition in Saved Posts",
			BugType:     "Race Condition",
			Points:      50,
			Description: "You discovered a race condition vulnerability in the saved posts feature!",
		}, fiber.Map{"post_id": post.ID})
	}

	var existing models.Save
	err := s.DB.Where("user_id = ? AND post_id = ?", user.ID, post.ID).First(&existing).Error
	if err == nil {
		s.DB.Delete(&existing)
		return c.JSON(fiber.Map{"saved": false, "message": "Post removed from saved."})
	}

	save := models.Save{UserID: user.ID, PostID: post.ID}
	if err := s.DB.Create(&save).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save post."})
	}
	createNotification(s.DB, user.ID, post.UserID, models.NotificationSave, &post.ID, nil)
	return c.JSON(fiber.Map{"saved": true, "message": "Post saved."})
}

// CreateComment screens the text for script payloads before storing it.
// A flagged payload is never persisted; it becomes a discovery instead.
func (s *PostService) CreateComment(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var post models.Post
	if err := s.DB.First(&post, "id = ?", c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Post not found."})
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Comment text is required."})
	}

	if DetectXSS(req.Text) {
		log.Printf("🚨 [CTF] XSS payload in comment by %s on post %d", user.Username, post.ID)
		return s.CTF.Trigger(c, ExploitCheck{
			BugTitle:    "XSS in Comment System",
			BugType:     "Cross-Site Scripting (XSS)",
			Points:      75,
			Description: "You discovered a cross-site scripting vulnerability in the comment system!",
		}, fiber.Map{"post_id": post.ID})
	}

	comment := models.Comment{
		UserID: user.ID,
		PostID: post.ID,
		Text:   SanitizeText(req.Text),
	}
	if err := s.DB.Create(&comment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create comment."})
	}
	createNotification(s.DB, user.ID, post.UserID, models.NotificationComment, &post.ID, &comment.ID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":         comment.ID,
		"post_id":    comment.PostID,
		"username":   user.Username,
		"text":       comment.Text,
		"created_at": comment.CreatedAt,
	})
}

// ListComments returns a post's comments, oldest first.
func (s *PostService) ListComments(c *fiber.Ctx) error {
	var comments []models.Comment
	if err := s.DB.Preload("User").
		Where("post_id = ?", c.Params("id")).
		Order("created_at ASC").
		Find(&comments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load comments."})
	}

	out := make([]fiber.Map, 0, len(comments))
	for _, cm := range comments {
		out = append(out, fiber.Map{
			"id":         cm.ID,
			"post_id":    cm.PostID,
			"username":   cm.User.Username,
			"text":       cm.Text,
			"created_at": cm.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"comments": out})
}

// DeleteComment removes a comment owned by the caller.
func (s *PostService) DeleteComment(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var comment models.Comment
	if err := s.DB.First(&comment, "id = ?", c.Params("commentId")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Comment not found."})
	}
	if comment.UserID != user.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You can only delete your own comments."})
	}
	if err := s.DB.Delete(&comment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete comment."})
	}
	return c.JSON(fiber.Map{"message": "Comment deleted."})
}

// ServePostImage streams a post's image. Privacy is checked against the
// post record, and a non-owner hitting a private image is a discovery, not
// a 403.
func (s *PostService) ServePostImage(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var post models.Post
	if err := s.DB.First(&post, "id = ?", c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Post not found."})
	}

	if post.IsPrivate && (user == nil || user.ID != post.UserID) {
		who := "anonymous"
		if user != nil {
			who = user.Username
		}
		log.Printf("🚨 [CTF] private post %d image accessed by %s", post.ID, who)
		return s.CTF.Trigger(c, ExploitCheck{
			BugTitle:    "Private Post Viewing",
			BugType:     "Privacy Bypass",
			Points:      100,
			Description: "You discovered a privacy bypass vulnerability! Private post images are accessible to anyone with the URL.",
		}, fiber.Map{"post_id": post.ID})
	}

	if utils.MediaStoreRemote() {
		return c.Redirect(post.ImageURL, fiber.StatusFound)
	}
	path := utils.GetUploadPath(strings.TrimPrefix(post.ImageURL, "/uploads/"))
	c.Set("Content-Type", utils.ImageContentType(path))
	return c.SendFile(path)
}

// PostStats summarizes a post's engagement for its owner.
func (s *PostService) PostStats(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var post models.Post
	if err := s.DB.First(&post, "id = ?", c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Post not found."})
	}
	if post.UserID != user.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You can only view stats for your own posts."})
	}

	var likes, comments, saves int64
	s.DB.Model(&models.Like{}).Where("post_id = ?", post.ID).Count(&likes)
	s.DB.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&comments)
	s.DB.Model(&models.Save{}).Where("post_id = ?", post.ID).Count(&saves)

	return c.JSON(fiber.Map{
		"post_id":  post.ID,
		"likes":    likes,
		"comments": comments,
		"saves":    saves,
	})
}
