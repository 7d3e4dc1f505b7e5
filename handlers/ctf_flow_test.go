// handlers/ctf_flow_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"instacam-backend/models"
	"instacam-backend/services"
	"instacam-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.AuthToken{},
		&models.Post{},
		&models.Like{},
		&models.Comment{},
		&models.Save{},
		&models.Follow{},
		&models.Notification{},
		&models.ChatThread{},
		&models.ChatMessage{},
		&models.Bug{},
		&models.BugSolve{},
		&models.LeaderboardEntry{},
	))

	app := fiber.New()
	cache := utils.NewMemoryCache()
	sessions := session.New()

	scoring := services.NewScoringService(db)
	pending := services.NewPendingService(cache)
	ctf := services.NewCTFService(db, scoring, pending, sessions)
	auth := services.NewAuthService(db, cache, scoring, pending, ctf, sessions)
	tracker := services.NewAttemptTracker()
	posts := services.NewPostService(db, tracker, ctf)
	users := services.NewUserService(db, ctf)
	chat := services.NewChatService(db, ctf)
	notifications := services.NewNotificationService(db)

	SetupAuthRoutes(app, db, auth)
	SetupPostRoutes(app, db, posts)
	SetupUserRoutes(app, db, users, notifications)
	SetupChatRoutes(app, db, chat)
	SetupCTFRoutes(app, db, ctf)

	return &testEnv{app: app, db: db}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := e.app.Test(req, int(10*time.Second/time.Millisecond))
	require.NoError(t, err)

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp, decoded
}

func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	resp, body := e.request(t, "POST", "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestSearchSQLInjectionAwardsOnce(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "hunter")

	payload := url.QueryEscape("' UNION SELECT * FROM users --")
	resp, body := env.request(t, "GET", "/api/users/search?q="+payload, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, true, body["vulnerability_detected"])
	require.Equal(t, "SQL Injection", body["bug_type"])
	require.EqualValues(t, 100, body["ctf_points_awarded"])
	require.EqualValues(t, 100, body["ctf_total_points"])
	flag, _ := body["flag"].(string)
	require.True(t, strings.HasPrefix(flag, "CTF{sql_injection_in_user_search_"), "flag: %q", flag)

	// Rediscovery keeps the payload shape but pays nothing.
	_, body = env.request(t, "GET", "/api/users/search?q="+payload, token, nil)
	require.Equal(t, true, body["vulnerability_detected"])
	require.EqualValues(t, 0, body["ctf_points_awarded"])
	require.EqualValues(t, 100, body["ctf_total_points"])
	require.Nil(t, body["flag"])
}

func TestSearchXPathInjectionIsItsOwnBug(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "hunter")

	payload := url.QueryEscape("contains(username, 'admin')")
	resp, body := env.request(t, "GET", "/api/users/search?q="+payload, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "XPath Injection", body["bug_type"])
	require.EqualValues(t, 100, body["ctf_points_awarded"])
}

func TestSearchAnonymousWithholdsPointsAndFlag(t *testing.T) {
	env := newTestEnv(t)

	payload := url.QueryEscape("' OR 1=1 --")
	resp, body := env.request(t, "GET", "/api/users/search?q="+payload, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["vulnerability_detected"])
	require.Equal(t, true, body["require_login"])
	require.Nil(t, body["flag"])
	require.Nil(t, body["ctf_points_awarded"])
}

func TestSearchCleanQueryReturnsMatches(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "hunter")
	env.register(t, "Huntress")
	env.register(t, "bob")

	resp, body := env.request(t, "GET", "/api/users/search?q=hunt", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, body["vulnerability_detected"])

	users, ok := body["users"].([]interface{})
	require.True(t, ok)
	require.Len(t, users, 2, "match is case-insensitive")

	names := map[string]bool{}
	for _, u := range users {
		names[u.(map[string]interface{})["username"].(string)] = true
	}
	require.True(t, names["hunter"])
	require.True(t, names["Huntress"])
}

func TestPrivateAndProfilePostListings(t *testing.T) {
	env := newTestEnv(t)
	ownerToken := env.register(t, "owner")
	visitorToken := env.register(t, "visitor")

	var owner models.User
	require.NoError(t, env.db.Where("username = ?", "owner").First(&owner).Error)
	require.NoError(t, env.db.Create(&models.Post{UserID: owner.ID, ImageURL: "/uploads/a.jpg", Caption: "public"}).Error)
	require.NoError(t, env.db.Create(&models.Post{UserID: owner.ID, ImageURL: "/uploads/b.jpg", Caption: "hidden", IsPrivate: true}).Error)

	// Private listing is scoped to the caller's own private posts.
	resp, body := env.request(t, "GET", "/api/posts/private", ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	posts := body["posts"].([]interface{})
	require.Len(t, posts, 1)
	require.Equal(t, "hidden", posts[0].(map[string]interface{})["caption"])

	_, body = env.request(t, "GET", "/api/posts/private", visitorToken, nil)
	require.Empty(t, body["posts"])

	// Profile grid: the owner sees both posts, everyone else only the
	// public one.
	_, body = env.request(t, "GET", "/api/users/owner/posts", ownerToken, nil)
	require.Len(t, body["posts"].([]interface{}), 2)

	_, body = env.request(t, "GET", "/api/users/owner/posts", visitorToken, nil)
	posts = body["posts"].([]interface{})
	require.Len(t, posts, 1)
	require.Equal(t, "public", posts[0].(map[string]interface{})["caption"])
}

func TestUpdateMeCanClearBio(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "hunter")

	patch := func(form string) map[string]interface{} {
		req := httptest.NewRequest("PATCH", "/api/users/me", strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Token "+token)
		resp, err := env.app.Test(req, int(10*time.Second/time.Millisecond))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]interface{}
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))
		return body
	}

	body := patch("bio=surf+photos")
	require.Equal(t, "surf photos", body["bio"])

	// Sending the field empty clears it; omitting it leaves it alone.
	body = patch("bio=")
	require.Equal(t, "", body["bio"])
}

func TestSetRoleEscalationAttempt(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "hunter")

	resp, body := env.request(t, "POST", "/api/users/set-role", token, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["vulnerability_detected"])
	require.Equal(t, "Privilege Escalation", body["bug_type"])
	require.EqualValues(t, 50, body["ctf_points_awarded"])
	require.Equal(t, "admin", body["attempted_role"])
	require.Equal(t, "user", body["actual_user_role"])

	// The role is never actually applied anywhere: non-restricted input is
	// just a validation error.
	resp, _ = env.request(t, "POST", "/api/users/set-role", token, map[string]string{"role": "banana"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCommentXSSDetectedAndNeverStored(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "hunter")

	var owner models.User
	require.NoError(t, env.db.Where("username = ?", "hunter").First(&owner).Error)
	post := models.Post{UserID: owner.ID, ImageURL: "/uploads/x.jpg"}
	require.NoError(t, env.db.Create(&post).Error)

	resp, body := env.request(t, "POST", fmt.Sprintf("/api/posts/%d/comments", post.ID), token,
		map[string]string{"text": "<script>alert('xss')</script>"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Cross-Site Scripting (XSS)", body["bug_type"])
	require.EqualValues(t, 75, body["ctf_points_awarded"])

	var count int64
	env.db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&count)
	require.EqualValues(t, 0, count, "flagged payloads must not be persisted")
}

func TestPrivatePostImagePrivacyBypass(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "owner")
	peeker := env.register(t, "peeker")

	var owner models.User
	require.NoError(t, env.db.Where("username = ?", "owner").First(&owner).Error)
	post := models.Post{UserID: owner.ID, ImageURL: "/uploads/secret.jpg", IsPrivate: true}
	require.NoError(t, env.db.Create(&post).Error)

	resp, body := env.request(t, "GET", fmt.Sprintf("/api/posts/%d/image", post.ID), peeker, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Privacy Bypass", body["bug_type"])
	require.EqualValues(t, 100, body["ctf_points_awarded"])
}

func TestChatIDORLeaksAndAwards(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	env.register(t, "bob")
	eveToken := env.register(t, "eve")

	var alice, bob models.User
	require.NoError(t, env.db.Where("username = ?", "alice").First(&alice).Error)
	require.NoError(t, env.db.Where("username = ?", "bob").First(&bob).Error)

	thread := models.ChatThread{IsAccepted: true, Participants: []models.User{alice, bob}}
	require.NoError(t, env.db.Create(&thread).Error)
	require.NoError(t, env.db.Create(&models.ChatMessage{
		ThreadID: thread.ID, SenderID: alice.ID, Text: "my password is hunter2",
	}).Error)

	resp, body := env.request(t, "GET", fmt.Sprintf("/api/chat/threads/%d/messages", thread.ID), eveToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "IDOR (Insecure Direct Object Reference)", body["bug_type"])
	require.EqualValues(t, 75, body["ctf_points_awarded"])
	require.NotNil(t, body["messages"], "the leak itself ships with the discovery")

	// Participants use the endpoint without tripping anything.
	var aliceToken models.AuthToken
	require.NoError(t, env.db.Where("user_id = ?", alice.ID).First(&aliceToken).Error)
	_, body = env.request(t, "GET", fmt.Sprintf("/api/chat/threads/%d/messages", thread.ID), aliceToken.Key, nil)
	require.Nil(t, body["bug_type"])
	require.NotNil(t, body["messages"])
}

func TestLoginRateLimitPendingThenRedeemed(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "mallory")

	var last map[string]interface{}
	for i := 0; i < 10; i++ {
		_, last = env.request(t, "POST", "/api/auth/login", "", map[string]string{
			"username": "mallory",
			"password": "wrong-password",
		})
	}
	require.Equal(t, true, last["vulnerability_detected"])
	require.Equal(t, "Missing Rate Limiting in Login", last["bug_title"])
	require.Equal(t, true, last["require_login"])
	require.Nil(t, last["flag"])

	// Logging in with the real password claims the pending discovery.
	resp, body := env.request(t, "POST", "/api/auth/login", "", map[string]string{
		"username": "mallory",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["vulnerability_detected"])
	require.EqualValues(t, 75, body["ctf_points_awarded"])
	flag, _ := body["flag"].(string)
	require.True(t, strings.HasPrefix(flag, "CTF{missing_rate_limiting_in_login_"), "flag: %q", flag)

	// A second clean login finds nothing left to redeem.
	_, body = env.request(t, "POST", "/api/auth/login", "", map[string]string{
		"username": "mallory",
		"password": "secret123",
	})
	require.Nil(t, body["ctf_points_awarded"])
}

func TestResetTokenFamilyVerify(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "alice")

	uid := "YWxpY2U=" // base64("alice")
	valid := "550e8400-e29b-41d4-a716-446655440000-YWxpY2U="

	resp, body := env.request(t, "GET", "/api/auth/reset-password/"+uid+"/justonetoken/verify", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Invalid Password Reset Token Format", body["bug_type"])
	require.EqualValues(t, 100, body["ctf_points_awarded"])

	resp, body = env.request(t, "GET", "/api/auth/reset-password/"+uid+"/"+valid+"/verify", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["vulnerability_detected"])
	require.Equal(t, true, body["valid"])
}

func TestLeaderboardOrdersByPoints(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.register(t, "alice")
	bobToken := env.register(t, "bob")

	// alice finds two bugs, bob finds one.
	env.request(t, "GET", "/api/users/search?q="+url.QueryEscape("' OR 1=1 --"), aliceToken, nil)
	env.request(t, "POST", "/api/users/set-role", aliceToken, map[string]string{"role": "admin"})
	env.request(t, "POST", "/api/users/set-role", bobToken, map[string]string{"role": "staff"})

	resp, body := env.request(t, "GET", "/api/ctf/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	results, ok := body["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 2)
	first := results[0].(map[string]interface{})
	second := results[1].(map[string]interface{})
	require.Equal(t, "alice", first["username"])
	require.EqualValues(t, 150, first["total_points"])
	require.Equal(t, "bob", second["username"])
	require.EqualValues(t, 50, second["total_points"])
}
