// services/notify.go
package services

import (
	"log"

	"instacam-backend/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type NotificationService struct {
	DB *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db}
}

// createNotification records an activity event for the receiver. Self-actions
// never notify, and save notifications are deduplicated so toggling the save
// button doesn't spam the post owner.
func createNotification(db *gorm.DB, senderID, receiverID uint, notificationType string, postID, commentID *uint) {
	if senderID == receiverID {
		return
	}
	if notificationType == models.NotificationSave && postID != nil {
		var count int64
		db.Model(&models.Notification{}).
			Where("sender_id = ? AND receiver_id = ? AND notification_type = ? AND post_id = ?",
				senderID, receiverID, notificationType, *postID).
			Count(&count)
		if count > 0 {
			return
		}
	}
	n := models.Notification{
		SenderID:         senderID,
		ReceiverID:       receiverID,
		NotificationType: notificationType,
		PostID:           postID,
		CommentID:        commentID,
	}
	if err := db.Create(&n).Error; err != nil {
		log.Printf("⚠️ [NOTIFY] failed to create %s notification: %v", notificationType, err)
	}
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var notifications []models.Notification
	if err := s.DB.Preload("Sender").
		Where("receiver_id = ?", user.ID).
		Order("created_at DESC").
		Limit(50).
		Find(&notifications).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load notifications."})
	}

	out := make([]fiber.Map, 0, len(notifications))
	for _, n := range notifications {
		item := fiber.Map{
			"id":                n.ID,
			"sender_username":   n.Sender.Username,
			"notification_type": n.NotificationType,
			"is_read":           n.IsRead,
			"created_at":        n.CreatedAt,
		}
		if n.PostID != nil {
			item["post_id"] = *n.PostID
		}
		out = append(out, item)
	}
	return c.JSON(fiber.Map{"notifications": out})
}

// MarkRead flags a single notification owned by the caller.
func (s *NotificationService) MarkRead(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var n models.Notification
	if err := s.DB.Where("id = ? AND receiver_id = ?", c.Params("id"), user.ID).First(&n).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Notification not found."})
	}
	if err := s.DB.Model(&n).Update("is_read", true).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update notification."})
	}
	return c.JSON(fiber.Map{"message": "Notification marked as read."})
}

// MarkAllRead flags every unread notification for the caller.
func (s *NotificationService) MarkAllRead(c *fiber.Ctx) error {
	user := CurrentUser(c)
	if err := s.DB.Model(&models.Notification{}).
		Where("receiver_id = ? AND is_read = ?", user.ID, false).
		Update("is_read", true).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update notifications."})
	}
	return c.JSON(fiber.Map{"message": "All notifications marked as read."})
}
