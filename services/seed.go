// services/seed.go
package services

import (
	"log"
	"os"

	"instacam-backend/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedDemoData creates the demo accounts and a chat thread between them when
// SEED_DEMO_DATA=true. Idempotent: a second boot finds alice and does
// nothing.
func SeedDemoData(db *gorm.DB) {
	if os.Getenv("SEED_DEMO_DATA") != "true" {
		return
	}

	var count int64
	db.Model(&models.User{}).Where("username = ?", "alice").Count(&count)
	if count > 0 {
		log.Println("ℹ️ Demo data already present, skipping seed")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("❌ Demo seed failed: %v", err)
		return
	}

	alice := models.User{Username: "alice", Email: "alice@example.com", PasswordHash: string(hash), Bio: "Coffee, cameras, and long walks."}
	bob := models.User{Username: "bob", Email: "bob@example.com", PasswordHash: string(hash), Bio: "Mostly here for the memes."}
	if err := db.Create(&alice).Error; err != nil {
		log.Printf("❌ Demo seed failed: %v", err)
		return
	}
	if err := db.Create(&bob).Error; err != nil {
		log.Printf("❌ Demo seed failed: %v", err)
		return
	}

	db.Create(&models.Follow{FollowerID: alice.ID, FollowingID: bob.ID})
	db.Create(&models.Follow{FollowerID: bob.ID, FollowingID: alice.ID})

	thread := models.ChatThread{IsAccepted: true, Participants: []models.User{alice, bob}}
	if err := db.Create(&thread).Error; err != nil {
		log.Printf("⚠️ Demo seed: thread creation failed: %v", err)
	} else {
		db.Create(&models.ChatMessage{ThreadID: thread.ID, SenderID: alice.ID, Text: "hey, did you try the new search yet?"})
		db.Create(&models.ChatMessage{ThreadID: thread.ID, SenderID: bob.ID, Text: "not yet, anything interesting in there?"})
	}

	log.Println("🎉 Demo data seeded: alice / bob (password123)")
}
