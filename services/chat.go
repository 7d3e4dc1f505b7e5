// services/chat.go
package services

import (
	"log"
	"strings"

	"instacam-backend/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ChatService struct {
	DB  *gorm.DB
	CTF *CTFService
}

func NewChatService(db *gorm.DB, ctf *CTFService) *ChatService {
	return &ChatService{DB: db, CTF: ctf}
}

func threadHasParticipant(thread *models.ChatThread, userID uint) bool {
	for _, p := range thread.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

func (s *ChatService) loadThread(id string) (*models.ChatThread, error) {
	var thread models.ChatThread
	if err := s.DB.Preload("Participants").First(&thread, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

func (s *ChatService) serializeThread(thread *models.ChatThread, viewer *models.User) fiber.Map {
	other := fiber.Map{}
	for _, p := range thread.Participants {
		if p.ID != viewer.ID {
			other = fiber.Map{
				"id":                  p.ID,
				"username":            p.Username,
				"profile_picture_url": p.ProfilePictureURL,
			}
			break
		}
	}

	var last models.ChatMessage
	lastText := ""
	if err := s.DB.Where("thread_id = ?", thread.ID).Order("created_at DESC").First(&last).Error; err == nil {
		lastText = last.Text
	}

	return fiber.Map{
		"id":           thread.ID,
		"is_accepted":  thread.IsAccepted,
		"other_user":   other,
		"last_message": lastText,
		"updated_at":   thread.UpdatedAt,
	}
}

// ThreadList splits the caller's threads into the accepted inbox and
// pending requests started by someone else.
func (s *ChatService) ThreadList(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var threads []models.ChatThread
	if err := s.DB.Preload("Participants").
		Joins("JOIN chat_thread_participants ctp ON ctp.chat_thread_id = chat_threads.id").
		Where("ctp.user_id = ?", user.ID).
		Order("chat_threads.updated_at DESC").
		Find(&threads).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load threads."})
	}

	inbox := []fiber.Map{}
	requests := []fiber.Map{}
	for i := range threads {
		item := s.serializeThread(&threads[i], user)
		if threads[i].IsAccepted {
			inbox = append(inbox, item)
		} else {
			requests = append(requests, item)
		}
	}
	return c.JSON(fiber.Map{"inbox": inbox, "requests": requests})
}

// StartThread opens (or reuses) a thread with another user.
func (s *ChatService) StartThread(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var req struct {
		Username string `json:"username"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}

	var target models.User
	if err := s.DB.Where("username = ?", req.Username).First(&target).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found."})
	}
	if target.ID == user.ID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "You cannot message yourself."})
	}

	// Reuse an existing thread between the pair if there is one.
	var existing []models.ChatThread
	s.DB.Preload("Participants").
		Joins("JOIN chat_thread_participants ctp ON ctp.chat_thread_id = chat_threads.id").
		Where("ctp.user_id = ?", user.ID).
		Find(&existing)
	for i := range existing {
		if threadHasParticipant(&existing[i], target.ID) {
			return c.JSON(s.serializeThread(&existing[i], user))
		}
	}

	thread := models.ChatThread{Participants: []models.User{*user, target}}
	if err := s.DB.Create(&thread).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to start thread."})
	}
	log.Printf("✅ [CHAT] thread %d started: %s → %s", thread.ID, user.Username, target.Username)
	return c.Status(fiber.StatusCreated).JSON(s.serializeThread(&thread, user))
}

// AcceptThread marks a message request as accepted. Only the participant
// who did not start the thread would normally accept, but any participant
// may.
func (s *ChatService) AcceptThread(c *fiber.Ctx) error {
	user := CurrentUser(c)

	thread, err := s.loadThread(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Thread not found."})
	}
	if !threadHasParticipant(thread, user.ID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You are not part of this thread."})
	}
	if err := s.DB.Model(thread).Update("is_accepted", true).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to accept thread."})
	}
	return c.JSON(fiber.Map{"message": "Thread accepted."})
}

func (s *ChatService) serializeMessages(threadID uint) ([]fiber.Map, error) {
	var messages []models.ChatMessage
	if err := s.DB.Preload("Sender").
		Where("thread_id = ?", threadID).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		return nil, err
	}
	out := make([]fiber.Map, 0, len(messages))
	for _, m := range messages {
		out = append(out, fiber.Map{
			"id":         m.ID,
			"sender":     m.Sender.Username,
			"text":       m.Text,
			"created_at": m.CreatedAt,
		})
	}
	return out, nil
}

// MessageList returns a thread's messages to its participants only.
func (s *ChatService) MessageList(c *fiber.Ctx) error {
	user := CurrentUser(c)

	thread, err := s.loadThread(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Thread not found."})
	}
	if !threadHasParticipant(thread, user.ID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You are not part of this thread."})
	}

	messages, err := s.serializeMessages(thread.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load messages."})
	}
	return c.JSON(fiber.Map{"thread_id": thread.ID, "messages": messages})
}

// VulnerableMessageList is the legacy message endpoint: it looks the thread
// up by ID with no participant check, so any authenticated user can read any
// conversation. Hitting it for a thread you are not in both leaks the
// messages and registers the discovery.
func (s *ChatService) VulnerableMessageList(c *fiber.Ctx) error {
	user := CurrentUser(c)

	thread, err := s.loadThread(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Thread not found."})
	}

	messages, merr := s.serializeMessages(thread.ID)
	if merr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load messages."})
	}

	if user != nil && !threadHasParticipant(thread, user.ID) {
		log.Printf("🚨 [CTF] IDOR: %s read thread %d without being a participant", user.Username, thread.ID)
		return s.CTF.Trigger(c, ExploitCheck{
			BugTitle:    "IDOR in Chat Messages",
			BugType:     "IDOR (Insecure Direct Object Reference)",
			Points:      75,
			Description: "You discovered an IDOR vulnerability! Chat messages are accessible by guessing thread IDs.",
		}, fiber.Map{"thread_id": thread.ID, "messages": messages})
	}

	return c.JSON(fiber.Map{"thread_id": thread.ID, "messages": messages})
}

// SendMessage appends a message to a thread the caller participates in.
func (s *ChatService) SendMessage(c *fiber.Ctx) error {
	user := CurrentUser(c)

	thread, err := s.loadThread(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Thread not found."})
	}
	if !threadHasParticipant(thread, user.ID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You are not part of this thread."})
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Message text is required."})
	}

	message := models.ChatMessage{
		ThreadID: thread.ID,
		SenderID: user.ID,
		Text:     SanitizeText(req.Text),
	}
	if err := s.DB.Create(&message).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to send message."})
	}
	s.DB.Model(thread).Update("updated_at", message.CreatedAt)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":         message.ID,
		"thread_id":  message.ThreadID,
		"sender":     user.Username,
		"text":       message.Text,
		"created_at": message.CreatedAt,
	})
}

// DebugThreads enumerates every thread in the system with participant
// usernames. It exists to make the IDOR endpoint discoverable.
func (s *ChatService) DebugThreads(c *fiber.Ctx) error {
	var threads []models.ChatThread
	if err := s.DB.Preload("Participants").Order("id ASC").Find(&threads).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load threads."})
	}

	out := make([]fiber.Map, 0, len(threads))
	for _, t := range threads {
		names := make([]string, 0, len(t.Participants))
		for _, p := range t.Participants {
			names = append(names, p.Username)
		}
		out = append(out, fiber.Map{
			"id":           t.ID,
			"participants": names,
			"is_accepted":  t.IsAccepted,
		})
	}
	return c.JSON(fiber.Map{"threads": out})
}
