package models

import "time"

// ChatThread is a direct-message conversation. Threads start as requests and
// become visible in the inbox once the receiver accepts.
type ChatThread struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	IsAccepted   bool   `gorm:"default:false" json:"is_accepted"`
	Participants []User `gorm:"many2many:chat_thread_participants;" json:"participants"`

	Timestamps
}

type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ThreadID  uint      `gorm:"index;not null" json:"thread_id"`
	SenderID  uint      `gorm:"index;not null" json:"sender_id"`
	Sender    User      `json:"-"`
	Text      string    `gorm:"not null" json:"text"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
