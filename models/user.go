package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the identity record for the social app plus the two CTF counters.
// Points and BugsSolved are monotonically non-decreasing and mutated only by
// the scoring service.
type User struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	Username          string `gorm:"uniqueIndex;not null" json:"username"`
	Email             string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash      string `gorm:"not null" json:"-"`
	Bio               string `json:"bio"`
	ProfilePictureURL string `json:"profile_picture,omitempty"`

	Points     int `gorm:"default:0" json:"points"`
	BugsSolved int `gorm:"default:0" json:"bugs_solved"`

	ScreenLocked bool `gorm:"default:false" json:"screen_locked"`

	Timestamps
}

// AuthToken is an opaque per-user API token (DRF-token style: one token per
// user, fetched or created at login).
type AuthToken struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	User      User      `json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
