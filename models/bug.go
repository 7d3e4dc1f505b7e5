package models

import "time"

// Bug categories (CTF sense: a catalogued, scorable vulnerability pattern).
const (
	BugCategorySecurity      = "security"
	BugCategoryUIUX          = "ui_ux"
	BugCategoryPerformance   = "performance"
	BugCategoryFunctionality = "functionality"
	BugCategoryOther         = "other"
)

// Bug is the catalog record for a scorable vulnerability. Created lazily on
// the first discovery of its title anywhere in the system; Points is fixed at
// creation and later award calls with a different value are ignored
// (first-write-wins).
type Bug struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"uniqueIndex;size:200;not null" json:"title"`
	Description string `json:"description"`
	Category    string `gorm:"size:20;default:'other'" json:"category"`
	Points      int    `gorm:"not null" json:"points"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// BugSolve is the discovery ledger: one row per (user, bug), created exactly
// once. Its existence means "already credited" — the row is the atomic event
// that gates crediting and it is never mutated or deleted afterwards.
type BugSolve struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	UserID   uint      `gorm:"uniqueIndex:idx_bug_solves_user_bug;not null" json:"user_id"`
	BugID    uint      `gorm:"uniqueIndex:idx_bug_solves_user_bug;not null" json:"bug_id"`
	SolvedAt time.Time `gorm:"autoCreateTime" json:"solved_at"`
}

// LeaderboardEntry is a derived cache of the user's counters, recomputed in
// full on every successful award. Read-optimization only, never a source of
// truth.
type LeaderboardEntry struct {
	ID              uint `gorm:"primaryKey" json:"id"`
	UserID          uint `gorm:"uniqueIndex;not null" json:"user_id"`
	User            User `json:"-"`
	TotalPoints     int  `gorm:"default:0" json:"total_points"`
	TotalBugsSolved int  `gorm:"default:0" json:"total_bugs_solved"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
