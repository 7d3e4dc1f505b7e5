// services/scoring_test.go
package services

import (
	"fmt"
	"sync"
	"testing"

	"instacam-backend/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB gives each test its own in-memory database. A single connection
// keeps sqlite happy under the concurrency tests.
func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func newTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func TestFlagFormat(t *testing.T) {
	require.Equal(t, "CTF{sql_injection_in_user_search_7}", Flag("SQL Injection in User Search", 7))
	require.Equal(t, "CTF{race_condition_in_saved_posts_12}", Flag("Race Condition in Saved Posts", 12))
}

func TestAwardFirstDiscovery(t *testing.T) {
	db := newTestDB(t)
	scoring := NewScoringService(db)
	user := newTestUser(t, db, "hunter")

	res, err := scoring.Award(user, "SQL Injection in User Search", 100)

	require.NoError(t, err)
	require.True(t, res.Awarded)
	require.Equal(t, 100, res.PointsAwarded)
	require.Equal(t, 100, res.TotalPoints)
	require.Equal(t, 1, res.TotalBugsSolved)
	require.Equal(t, Flag("SQL Injection in User Search", user.ID), res.Flag)

	// Caller's copy reflects the new totals.
	require.Equal(t, 100, user.Points)
	require.Equal(t, 1, user.BugsSolved)

	var entry models.LeaderboardEntry
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&entry).Error)
	require.Equal(t, 100, entry.TotalPoints)
	require.Equal(t, 1, entry.TotalBugsSolved)
}

func TestAwardIdempotentRediscovery(t *testing.T) {
	db := newTestDB(t)
	scoring := NewScoringService(db)
	user := newTestUser(t, db, "hunter")

	first, err := scoring.Award(user, "XSS in Comment System", 75)
	require.NoError(t, err)
	require.True(t, first.Awarded)

	second, err := scoring.Award(user, "XSS in Comment System", 75)
	require.NoError(t, err)
	require.False(t, second.Awarded)
	require.Equal(t, 0, second.PointsAwarded)
	require.Equal(t, 75, second.TotalPoints)
	require.Empty(t, second.Flag)

	var solves int64
	db.Model(&models.BugSolve{}).Where("user_id = ?", user.ID).Count(&solves)
	require.EqualValues(t, 1, solves)
}

func TestAwardConcurrentAtMostOnce(t *testing.T) {
	db := newTestDB(t)
	scoring := NewScoringService(db)
	user := newTestUser(t, db, "racer")

	const workers = 8
	results := make([]AwardResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := *user
			results[i], _ = scoring.Award(&u, "Race Condition in Saved Posts", 50)
		}(i)
	}
	wg.Wait()

	awarded := 0
	for _, res := range results {
		if res.Awarded {
			awarded++
		}
	}
	require.Equal(t, 1, awarded, "exactly one caller wins the race")

	var fresh models.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	require.Equal(t, 50, fresh.Points)
	require.Equal(t, 1, fresh.BugsSolved)

	var solves int64
	db.Model(&models.BugSolve{}).Where("user_id = ?", user.ID).Count(&solves)
	require.EqualValues(t, 1, solves)
}

func TestAwardSurfacesPersistenceFailure(t *testing.T) {
	db := newTestDB(t)
	scoring := NewScoringService(db)
	user := newTestUser(t, db, "hunter")

	require.NoError(t, db.Migrator().DropTable(&models.BugSolve{}))

	res, err := scoring.Award(user, "XSS in Comment System", 75)
	require.Error(t, err)
	require.False(t, res.Awarded)
	require.Equal(t, 0, res.PointsAwarded)

	// The degraded result still carries the last-known totals.
	require.Equal(t, 0, res.TotalPoints)
	var fresh models.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	require.Equal(t, 0, fresh.Points)
	require.Equal(t, 0, fresh.BugsSolved)
}

func TestBugPointValueFirstWriteWins(t *testing.T) {
	db := newTestDB(t)
	scoring := NewScoringService(db)
	first := newTestUser(t, db, "first")
	second := newTestUser(t, db, "second")

	res, err := scoring.Award(first, "IDOR in Chat Messages", 75)
	require.NoError(t, err)
	require.True(t, res.Awarded)
	require.Equal(t, 75, res.PointsAwarded)

	// A later caller with a different value still pays out the original.
	res, err = scoring.Award(second, "IDOR in Chat Messages", 999)
	require.NoError(t, err)
	require.True(t, res.Awarded)
	require.Equal(t, 75, res.PointsAwarded)

	var bug models.Bug
	require.NoError(t, db.Where("title = ?", "IDOR in Chat Messages").First(&bug).Error)
	require.Equal(t, 75, bug.Points)
}

func TestRecomputeAllLeaderboardsHealsDrift(t *testing.T) {
	db := newTestDB(t)
	scoring := NewScoringService(db)
	user := newTestUser(t, db, "hunter")

	scoring.Award(user, "Private Post Viewing", 100)

	// Tamper with the derived table; the sweep restores it from the counters.
	require.NoError(t, db.Model(&models.LeaderboardEntry{}).
		Where("user_id = ?", user.ID).
		Update("total_points", 9999).Error)

	updated, err := scoring.RecomputeAllLeaderboards()
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	var entry models.LeaderboardEntry
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&entry).Error)
	require.Equal(t, 100, entry.TotalPoints)
	require.Equal(t, 1, entry.TotalBugsSolved)
}
