package models

import "time"

type Follow struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FollowerID  uint      `gorm:"uniqueIndex:idx_follows_pair;not null" json:"follower_id"`
	FollowingID uint      `gorm:"uniqueIndex:idx_follows_pair;not null" json:"following_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const (
	NotificationLike    = "like"
	NotificationComment = "comment"
	NotificationFollow  = "follow"
	NotificationSave    = "save"
)

type Notification struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	SenderID         uint   `gorm:"index;not null" json:"sender_id"`
	Sender           User   `json:"-"`
	ReceiverID       uint   `gorm:"index;not null" json:"receiver_id"`
	NotificationType string `gorm:"size:20;not null" json:"notification_type"`
	PostID           *uint  `json:"post_id,omitempty"`
	CommentID        *uint  `json:"comment_id,omitempty"`
	IsRead           bool   `gorm:"default:false" json:"is_read"`

	Timestamps
}
