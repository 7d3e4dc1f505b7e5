package models

import "time"

type Post struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	UserID    uint   `gorm:"index;not null" json:"user_id"`
	User      User   `json:"-"`
	ImageURL  string `gorm:"not null" json:"image_url"`
	Caption   string `json:"caption"`
	IsPrivate bool   `gorm:"default:false" json:"is_private"`

	Timestamps
}

type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_likes_user_post;not null" json:"user_id"`
	PostID    uint      `gorm:"uniqueIndex:idx_likes_user_post;not null" json:"post_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Comment struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"index;not null" json:"user_id"`
	User   User   `json:"-"`
	PostID uint   `gorm:"index;not null" json:"post_id"`
	Text   string `gorm:"not null" json:"text"`

	Timestamps
}

// Save is the bookmark row behind the save/unsave toggle. The toggle endpoint
// deliberately runs without concurrency control; the unique index is the only
// thing keeping duplicates out.
type Save struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_saves_user_post;not null" json:"user_id"`
	PostID    uint      `gorm:"uniqueIndex:idx_saves_user_post;not null" json:"post_id"`
	Post      Post      `json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
