// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

func (s *ScoringService) StartLeaderboardScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 5 minutes: recompute the leaderboard from bug_solves so any
	// drift between the counters and the solve rows heals itself
	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			updated, err := s.RecomputeAllLeaderboards()
			if err != nil {
				log.Printf("[Scheduler] leaderboard recompute failed: %v", err)
				return
			}
			if updated > 0 {
				log.Printf("🏆 Leaderboard sweep refreshed %d entries", updated)
			}
		}),
	)
}
