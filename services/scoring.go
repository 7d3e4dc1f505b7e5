// services/scoring.go
package services

import (
	"fmt"
	"log"
	"strings"

	"instacam-backend/models"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AwardResult is what a vulnerable endpoint gets back from the scoring
// engine. Awarded is true only for the first discovery of a bug by a user.
type AwardResult struct {
	Awarded         bool   `json:"awarded"`
	Message         string `json:"message"`
	PointsAwarded   int    `json:"points_awarded"`
	TotalPoints     int    `json:"total_points"`
	TotalBugsSolved int    `json:"total_bugs_solved"`
	Flag            string `json:"flag,omitempty"`
}

type ScoringService struct {
	DB *gorm.DB
}

func NewScoringService(db *gorm.DB) *ScoringService {
	return &ScoringService{DB: db}
}

// Flag builds the cosmetic proof-of-discovery token from the bug title and
// user identity. Not a credential.
func Flag(bugTitle string, userID uint) string {
	return fmt.Sprintf("CTF{%s_%d}", strings.ReplaceAll(slug.Make(bugTitle), "-", "_"), userID)
}

// Award credits points to user for discovering bugTitle, exactly once per
// (user, bug). The BugSolve insert, the counter increments and the
// leaderboard refresh are one transaction: either the user is fully credited
// or nothing happened. Persistence errors degrade to an awarded:false result
// with the last-known totals — scoring must never fail the request that
// triggered it — and return a non-nil error so callers holding a retryable
// record (the pending store) know nothing was credited.
func (s *ScoringService) Award(user *models.User, bugTitle string, points int) (AwardResult, error) {
	res := AwardResult{
		TotalPoints:     user.Points,
		TotalBugsSolved: user.BugsSolved,
	}

	bug, err := s.ensureBug(bugTitle, points)
	if err != nil {
		log.Printf("❌ [SCORING] failed to ensure bug %q: %v", bugTitle, err)
		res.Message = "Error processing bug discovery."
		return res, err
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		solve := models.BugSolve{UserID: user.ID, BugID: bug.ID}
		insert := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&solve)
		if insert.Error != nil {
			return insert.Error
		}

		if insert.RowsAffected == 0 {
			// Already credited — idempotent no-op, report current totals.
			var current models.User
			if err := tx.First(&current, user.ID).Error; err != nil {
				return err
			}
			res.Awarded = false
			res.PointsAwarded = 0
			res.TotalPoints = current.Points
			res.TotalBugsSolved = current.BugsSolved
			res.Message = "You have already found this bug. No extra points."
			return nil
		}

		// Relative increments: concurrent awards for *other* bugs must not
		// clobber each other.
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			UpdateColumns(map[string]interface{}{
				"points":      gorm.Expr("points + ?", bug.Points),
				"bugs_solved": gorm.Expr("bugs_solved + 1"),
			}).Error; err != nil {
			return err
		}

		var fresh models.User
		if err := tx.First(&fresh, user.ID).Error; err != nil {
			return err
		}

		if err := refreshLeaderboard(tx, &fresh); err != nil {
			return err
		}

		user.Points = fresh.Points
		user.BugsSolved = fresh.BugsSolved

		res.Awarded = true
		res.PointsAwarded = bug.Points
		res.TotalPoints = fresh.Points
		res.TotalBugsSolved = fresh.BugsSolved
		res.Message = fmt.Sprintf("%s bug found! +%d points", bug.Title, bug.Points)
		res.Flag = Flag(bug.Title, user.ID)
		return nil
	})
	if err != nil {
		log.Printf("❌ [SCORING] award transaction failed for user %d bug %q: %v", user.ID, bugTitle, err)
		return AwardResult{
			TotalPoints:     user.Points,
			TotalBugsSolved: user.BugsSolved,
			Message:         "Error processing bug discovery.",
		}, err
	}

	if res.Awarded {
		log.Printf("🏆 [SCORING] user %d found %q (+%d → %d total)", user.ID, bug.Title, res.PointsAwarded, res.TotalPoints)
	}
	return res, nil
}

// ensureBug get-or-creates the catalog record by title. Title is the natural
// key; the point value passed by later callers is ignored once the record
// exists (first-write-wins).
func (s *ScoringService) ensureBug(title string, points int) (*models.Bug, error) {
	var bug models.Bug
	err := s.DB.Where("title = ?", title).First(&bug).Error
	if err == nil {
		return &bug, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	bug = models.Bug{
		Title:       title,
		Description: fmt.Sprintf("User discovered %s", title),
		Category:    models.BugCategorySecurity,
		Points:      points,
	}
	// Two concurrent first discoveries race on the unique title index; the
	// loser's insert is a no-op and the follow-up lookup settles it.
	if err := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&bug).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Where("title = ?", title).First(&bug).Error; err != nil {
		return nil, err
	}
	return &bug, nil
}

// refreshLeaderboard recomputes the user's entry from the User counters in
// full. Recompute, not increment, so any drift self-heals on the next award.
func refreshLeaderboard(tx *gorm.DB, user *models.User) error {
	entry := models.LeaderboardEntry{UserID: user.ID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
		return err
	}
	return tx.Model(&models.LeaderboardEntry{}).Where("user_id = ?", user.ID).
		UpdateColumns(map[string]interface{}{
			"total_points":      user.Points,
			"total_bugs_solved": user.BugsSolved,
		}).Error
}

// RecomputeAllLeaderboards rebuilds every entry from the user table. Used by
// the periodic sweep.
func (s *ScoringService) RecomputeAllLeaderboards() (int, error) {
	var users []models.User
	if err := s.DB.Find(&users).Error; err != nil {
		return 0, err
	}
	for i := range users {
		if err := refreshLeaderboard(s.DB, &users[i]); err != nil {
			return i, err
		}
	}
	return len(users), nil
}
