// services/auth.go
package services

import (
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"instacam-backend/models"
	"instacam-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const loginFailureThreshold = 10

type AuthService struct {
	DB       *gorm.DB
	Cache    utils.Cache
	Scoring  *ScoringService
	Pending  *PendingService
	CTF      *CTFService
	Sessions *session.Store
}

func NewAuthService(db *gorm.DB, cache utils.Cache, scoring *ScoringService, pending *PendingService, ctf *CTFService, sessions *session.Store) *AuthService {
	return &AuthService{DB: db, Cache: cache, Scoring: scoring, Pending: pending, CTF: ctf, Sessions: sessions}
}

// ClientIP prefers the first X-Forwarded-For hop, matching how the app runs
// behind the dev proxy.
func ClientIP(c *fiber.Ctx) string {
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if ip := c.IP(); ip != "" {
		return ip
	}
	return "127.0.0.1"
}

// Register creates a new account and hands back its API token.
func (s *AuthService) Register(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Username, email, and password are required."})
	}

	var count int64
	s.DB.Model(&models.User{}).Where("username = ?", req.Username).Count(&count)
	if count > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Username already exists."})
	}
	s.DB.Model(&models.User{}).Where("email = ?", req.Email).Count(&count)
	if count > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Email already exists."})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create user."})
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
	}
	if err := s.DB.Create(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create user."})
	}

	token, err := s.ensureToken(&user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create user."})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "User created successfully.",
		"token":    token.Key,
		"user_id":  user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

// Login authenticates and, on success, redeems any pending CTF discoveries
// held by the caller's anonymous session. The failed-attempt sliding window
// (client IP + username, 5-minute horizon) feeds the missing-rate-limiting
// exercise: crossing the threshold records a pending discovery instead of
// blocking anything.
func (s *AuthService) Login(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	if req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Username and password are required."})
	}

	clientIP := ClientIP(c)
	ipScope := fmt.Sprintf("%s_%s", clientIP, req.Username)
	ctx := c.Context()

	var user models.User
	err := s.DB.Where("username = ?", req.Username).First(&user).Error
	authenticated := err == nil &&
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) == nil

	if !authenticated {
		attempts := loadLoginAttempts(ctx, s.Cache, clientIP, req.Username)
		attempts = append(attempts, time.Now().Unix())
		storeLoginAttempts(ctx, s.Cache, clientIP, req.Username, attempts)
		log.Printf("🚫 [LOGIN] failed attempt #%d for %q from %s", len(attempts), req.Username, clientIP)

		if len(attempts) >= loginFailureThreshold {
			log.Printf("🚨 [CTF] rate limiting bug triggered: %d failed attempts for %q", len(attempts), req.Username)
			clearLoginAttempts(ctx, s.Cache, clientIP, req.Username)

			if sess, serr := s.Sessions.Get(c); serr == nil {
				d := PendingDiscovery{
					BugTitle:       "Missing Rate Limiting in Login",
					Points:         75,
					TargetUsername: req.Username,
				}
				if rerr := s.Pending.Record(ctx, sess, d, ipScope); rerr != nil {
					log.Printf("❌ [CTF] failed to record rate-limit pending: %v", rerr)
				}
			}

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":                  "Invalid credentials.",
				"vulnerability_detected": true,
				"bug_title":              "Missing Rate Limiting in Login",
				"warning_message":        "No rate limiting protection found — log in with correct credentials to claim your discovery.",
				"require_login":          true,
			})
		}

		remaining := loginFailureThreshold - len(attempts)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":              "Invalid credentials.",
			"failed_attempts":    len(attempts),
			"attempts_remaining": remaining,
			"message":            fmt.Sprintf("Login failed. %d attempts remaining before rate limiting should kick in.", remaining),
		})
	}

	clearLoginAttempts(ctx, s.Cache, clientIP, req.Username)

	token, err := s.ensureToken(&user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to log in."})
	}

	response := fiber.Map{
		"token":    token.Key,
		"user_id":  user.ID,
		"username": user.Username,
		"email":    user.Email,
	}

	// Redeem pending discoveries BEFORE rotating the session: the pending
	// entries are keyed by the pre-login session ID, and the cache scopes
	// cover the rate-limit window keyed by IP+username.
	sess, serr := s.Sessions.Get(c)
	if serr != nil {
		log.Printf("❌ [LOGIN] session unavailable, skipping pending redemption: %v", serr)
		return c.JSON(response)
	}
	results := s.Pending.Redeem(ctx, sess, &user, s.Scoring, ipScope)
	if err := sess.Regenerate(); err != nil {
		log.Printf("[LOGIN] session regenerate failed: %v", err)
	}

	if len(results) > 0 {
		first := results[0]
		response["vulnerability_detected"] = true
		response["ctf_message"] = first.Message
		response["ctf_points_awarded"] = first.PointsAwarded
		response["ctf_total_points"] = first.TotalPoints
		if first.Awarded {
			response["flag"] = first.Flag
		}
		response["notification_type"] = notificationType(first)
		response["ctf_discoveries"] = results
	}

	log.Printf("✅ [LOGIN] %s logged in (%d pending discoveries redeemed)", user.Username, len(results))
	return c.JSON(response)
}

func notificationType(res AwardResult) string {
	if res.Awarded {
		return "success"
	}
	return "info"
}

// Logout deletes the caller's API token.
func (s *AuthService) Logout(c *fiber.Ctx) error {
	user := CurrentUser(c)
	if err := s.DB.Where("user_id = ?", user.ID).Delete(&models.AuthToken{}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to logout."})
	}
	return c.JSON(fiber.Map{"message": "Successfully logged out."})
}

func (s *AuthService) ensureToken(user *models.User) (*models.AuthToken, error) {
	var token models.AuthToken
	err := s.DB.Where("user_id = ?", user.ID).First(&token).Error
	if err == gorm.ErrRecordNotFound {
		token = models.AuthToken{
			Key:    strings.ReplaceAll(uuid.NewString(), "-", ""),
			UserID: user.ID,
		}
		if err := s.DB.Create(&token).Error; err != nil {
			return nil, err
		}
		return &token, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// ForgotPassword issues the deliberately predictable reset token
// ({uuid}-{base64 username}) and logs the link instead of mailing it — the
// console is part of the exercise.
func (s *AuthService) ForgotPassword(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	if req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Email is required."})
	}

	var user models.User
	if err := s.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No user found with this email address."})
	}

	encodedUsername := base64.StdEncoding.EncodeToString([]byte(user.Username))
	resetToken := fmt.Sprintf("%s-%s", uuid.NewString(), encodedUsername)
	frontendURL := "http://localhost:5173"

	log.Printf("🔑 PASSWORD RESET LINK for %s:", user.Email)
	log.Printf("🔗 %s/reset-password/%s/%s/", frontendURL, encodedUsername, resetToken)

	return c.JSON(fiber.Map{"message": "Password reset link sent! Check console."})
}

// resetTokenIssue classifies a reset token against the known vulnerability
// family, in fixed precedence order. A nil return means the token is
// structurally valid and names the same user as the URL subject.
var resetTokenChecks = map[string]ExploitCheck{
	"Invalid Password Reset UID Format": {
		BugTitle: "Invalid Password Reset UID Format", BugType: "Invalid Password Reset UID Format", Points: 100,
		Description: "You discovered an invalid password reset UID format vulnerability!",
	},
	"Empty Password Reset Token": {
		BugTitle: "Empty Password Reset Token", BugType: "Empty Password Reset Token", Points: 100,
		Description: "You discovered an empty password reset token vulnerability!",
	},
	"Invalid Password Reset Token Format": {
		BugTitle: "Invalid Password Reset Token Format", BugType: "Invalid Password Reset Token Format", Points: 100,
		Description: "You discovered an invalid password reset token format vulnerability!",
	},
	"Malformed Password Reset Token": {
		BugTitle: "Malformed Password Reset Token", BugType: "Malformed Password Reset Token", Points: 100,
		Description: "You discovered a malformed password reset token vulnerability!",
	},
	"Invalid Base64 in Password Reset Token": {
		BugTitle: "Invalid Base64 in Password Reset Token", BugType: "Invalid Base64 in Password Reset Token", Points: 100,
		Description: "You discovered an invalid base64 encoding in password reset token vulnerability!",
	},
	"Predictable Password Reset Token": {
		BugTitle: "Predictable Password Reset Token", BugType: "Predictable Password Reset Token", Points: 100,
		Description: "You discovered a predictable password reset token vulnerability! You attempted to exploit the token format to access another user's account.",
	},
}

// classifyResetToken parses the {uuid}-{base64 username} format. Malformed
// input is not an error here: tampering is evidence, so each failure mode is
// its own flaggable bug title.
func classifyResetToken(uidb64, token string) (targetUsername, tokenUsername string, issue *ExploitCheck) {
	fail := func(title string) (string, string, *ExploitCheck) {
		check := resetTokenChecks[title]
		return targetUsername, tokenUsername, &check
	}

	decodedUID, err := base64.StdEncoding.DecodeString(uidb64)
	if err != nil {
		return fail("Invalid Password Reset UID Format")
	}
	targetUsername = string(decodedUID)

	if token == "" {
		return fail("Empty Password Reset Token")
	}
	if !strings.Contains(token, "-") {
		return fail("Invalid Password Reset Token Format")
	}
	if strings.HasPrefix(token, "-") || strings.HasSuffix(token, "-") || strings.Trim(token, "-") == "" {
		return fail("Malformed Password Reset Token")
	}

	// The UUID prefix itself contains dashes, so the username suffix is
	// whatever follows the last one.
	idx := strings.LastIndex(token, "-")
	suffix := token[idx+1:]
	decoded, err := base64.StdEncoding.DecodeString(suffix)
	if err != nil {
		return fail("Invalid Base64 in Password Reset Token")
	}
	tokenUsername = string(decoded)

	if tokenUsername != targetUsername {
		return fail("Predictable Password Reset Token")
	}
	return targetUsername, tokenUsername, nil
}

// VerifyResetToken checks a reset link without changing the password. Every
// structural defect in the token is a distinct discovery.
func (s *AuthService) VerifyResetToken(c *fiber.Ctx) error {
	uidb64 := c.Params("uidb64")
	token := c.Params("token")

	target, tokenUser, issue := classifyResetToken(uidb64, token)
	if issue != nil {
		extra := fiber.Map{}
		if target != "" {
			extra["target_username"] = target
		}
		if tokenUser != "" {
			extra["token_username"] = tokenUser
		}
		return s.CTF.Trigger(c, *issue, extra)
	}

	log.Printf("✅ [RESET] token verification passed for %s", target)
	return c.JSON(fiber.Map{"vulnerability_detected": false, "valid": true})
}

// ResetPassword validates the token through the same classification chain
// and only then updates the password.
func (s *AuthService) ResetPassword(c *fiber.Ctx) error {
	uidb64 := c.Params("uidb64")
	token := c.Params("token")

	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
	}
	if req.NewPassword == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "New password is required."})
	}
	if len(req.NewPassword) < 6 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Password must be at least 6 characters long."})
	}

	target, tokenUser, issue := classifyResetToken(uidb64, token)
	if issue != nil {
		extra := fiber.Map{}
		if target != "" {
			extra["target_username"] = target
		}
		if tokenUser != "" {
			extra["token_username"] = tokenUser
		}
		return s.CTF.Trigger(c, *issue, extra)
	}

	var user models.User
	if err := s.DB.Where("username = ?", target).First(&user).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reset link."})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to reset password."})
	}
	if err := s.DB.Model(&user).Update("password_hash", string(hash)).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to reset password."})
	}

	log.Printf("✅ [RESET] password updated for %s", user.Username)
	return c.JSON(fiber.Map{"message": "Password successfully reset."})
}
