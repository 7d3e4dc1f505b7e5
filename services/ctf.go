// services/ctf.go
package services

import (
	"fmt"
	"log"
	"strings"

	"instacam-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"gorm.io/gorm"
)

// ExploitCheck parameterizes one vulnerable endpoint: which catalog bug a
// positive detection maps to and what the discovery payload says. All the
// vulnerable handlers funnel through the same Trigger flow so logically-equal
// bugs can't drift apart in points or payload shape.
type ExploitCheck struct {
	BugTitle    string
	BugType     string
	Points      int
	Description string
}

type CTFService struct {
	DB       *gorm.DB
	Scoring  *ScoringService
	Pending  *PendingService
	Sessions *session.Store
}

func NewCTFService(db *gorm.DB, scoring *ScoringService, pending *PendingService, sessions *session.Store) *CTFService {
	return &CTFService{DB: db, Scoring: scoring, Pending: pending, Sessions: sessions}
}

// CurrentUser returns the authenticated user attached by the auth middleware,
// or nil for anonymous callers.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}

// AwardPayload builds the discovery response for an authenticated caller.
// Repeat discoveries keep the same shape with zero points awarded.
func AwardPayload(res AwardResult, check ExploitCheck) fiber.Map {
	payload := fiber.Map{
		"vulnerability_detected": true,
		"ctf_message":            res.Message,
		"ctf_points_awarded":     res.PointsAwarded,
		"ctf_total_points":       res.TotalPoints,
		"bug_type":               check.BugType,
		"description":            check.Description,
	}
	if res.Awarded {
		payload["flag"] = res.Flag
	}
	return payload
}

// anonymousPayload deliberately withholds points and flag: the caller has to
// log in to claim, and learns nothing they could replay beforehand.
func anonymousPayload(check ExploitCheck) fiber.Map {
	return fiber.Map{
		"vulnerability_detected": true,
		"bug_title":              check.BugTitle,
		"warning_message":        "⚠️ Vulnerability found! Log in to your account to claim the points.",
		"require_login":          true,
	}
}

// Trigger is the single dispatch point for a detected exploit attempt:
// authenticated callers are awarded synchronously, anonymous callers get a
// pending discovery recorded against their session plus the cache backstop.
// extra fields are merged into the authenticated payload; pendingScopes are
// additional cache scopes beyond the session ID.
func (s *CTFService) Trigger(c *fiber.Ctx, check ExploitCheck, extra fiber.Map, pendingScopes ...string) error {
	log.Printf("🚨 [CTF] exploit attempt detected: %q via %s", check.BugTitle, c.Path())

	if user := CurrentUser(c); user != nil {
		// A scoring error degrades to awarded:false inside the result; the
		// carrying request still completes.
		res, _ := s.Scoring.Award(user, check.BugTitle, check.Points)
		payload := AwardPayload(res, check)
		for k, v := range extra {
			payload[k] = v
		}
		return c.Status(fiber.StatusOK).JSON(payload)
	}

	sess, err := s.Sessions.Get(c)
	if err != nil {
		log.Printf("❌ [CTF] could not open session for anonymous discovery: %v", err)
		return c.Status(fiber.StatusOK).JSON(anonymousPayload(check))
	}
	d := PendingDiscovery{BugTitle: check.BugTitle, Points: check.Points}
	if target, ok := extra["target_username"].(string); ok {
		d.TargetUsername = target
	}
	if tokenUser, ok := extra["token_username"].(string); ok {
		d.TokenUsername = tokenUser
	}
	if err := s.Pending.Record(c.Context(), sess, d, pendingScopes...); err != nil {
		log.Printf("❌ [CTF] failed to record pending discovery %q: %v", check.BugTitle, err)
	}
	return c.Status(fiber.StatusOK).JSON(anonymousPayload(check))
}

var restrictedRoles = map[string]bool{
	"admin":         true,
	"administrator": true,
	"moderator":     true,
	"staff":         true,
	"superuser":     true,
}

// SetUserRole looks like a privilege-escalation hole: any authenticated user
// can POST a restricted role. The role is never applied — the attempt is the
// discovery.
func (s *CTFService) SetUserRole(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var req struct {
		Role string `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))

	log.Printf("🚨 [CTF] privilege escalation attempt: user %s (ID: %d) tried role %q", user.Username, user.ID, role)

	if !restrictedRoles[role] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid role specified. Valid roles: admin, moderator, staff",
			"message": "Role must be one of: admin, moderator, staff",
		})
	}

	return s.Trigger(c, ExploitCheck{
		BugTitle:    "Privilege Escalation via API Endpoint",
		BugType:     "Privilege Escalation",
		Points:      50,
		Description: fmt.Sprintf("You attempted to escalate to %s - this would be dangerous in a real system!", role),
	}, fiber.Map{
		"attempted_role":   role,
		"actual_user_role": "user",
		"user_id":          user.ID,
		"username":         user.Username,
		"security_note":    "In a real system, this would be a critical security vulnerability!",
	})
}

// GetLeaderboard lists the derived leaderboard, best first.
func (s *CTFService) GetLeaderboard(c *fiber.Ctx) error {
	var entries []models.LeaderboardEntry
	if err := s.DB.Preload("User").
		Order("total_points DESC, total_bugs_solved DESC").
		Limit(100).
		Find(&entries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load leaderboard"})
	}

	results := make([]fiber.Map, len(entries))
	for i, e := range entries {
		results[i] = fiber.Map{
			"rank":              i + 1,
			"user_id":           e.UserID,
			"username":          e.User.Username,
			"total_points":      e.TotalPoints,
			"total_bugs_solved": e.TotalBugsSolved,
		}
	}
	return c.JSON(fiber.Map{"results": results, "count": len(results)})
}

// GetBugCatalog lists discovered bugs with the caller's solve status.
func (s *CTFService) GetBugCatalog(c *fiber.Ctx) error {
	var bugs []models.Bug
	if err := s.DB.Order("created_at DESC").Find(&bugs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load bugs"})
	}

	solved := map[uint]bool{}
	if user := CurrentUser(c); user != nil {
		var solves []models.BugSolve
		s.DB.Where("user_id = ?", user.ID).Find(&solves)
		for _, sv := range solves {
			solved[sv.BugID] = true
		}
	}

	results := make([]fiber.Map, len(bugs))
	for i, b := range bugs {
		results[i] = fiber.Map{
			"id":       b.ID,
			"title":    b.Title,
			"category": b.Category,
			"points":   b.Points,
			"solved":   solved[b.ID],
		}
	}
	return c.JSON(fiber.Map{"results": results, "count": len(results)})
}
