// services/tracker.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"instacam-backend/utils"
)

// AttemptTracker keeps a sliding window of click timestamps per composite
// key. The map is shared across requests WITHOUT locking: interleaved
// reads/writes from rapid concurrent requests are the race-condition exercise
// this tracker exists to surface, so do not add a mutex here.
type AttemptTracker struct {
	// Now is swappable so tests can drive the window deterministically.
	Now      func() time.Time
	attempts map[string][]time.Time
}

func NewAttemptTracker() *AttemptTracker {
	return &AttemptTracker{
		Now:      time.Now,
		attempts: make(map[string][]time.Time),
	}
}

// RecordAndCount prunes entries older than horizon, records the current
// attempt and returns the window size.
func (t *AttemptTracker) RecordAndCount(key string, horizon time.Duration) int {
	now := t.Now()
	window := t.attempts[key]
	pruned := window[:0]
	for _, ts := range window {
		if now.Sub(ts) < horizon {
			pruned = append(pruned, ts)
		}
	}
	pruned = append(pruned, now)
	t.attempts[key] = pruned
	return len(pruned)
}

// Clear resets the window for key. Called when the window triggers.
func (t *AttemptTracker) Clear(key string) {
	delete(t.attempts, key)
}

// SaveAttemptKey is the composite key for the save/unsave click window.
func SaveAttemptKey(userID, postID uint) string {
	return fmt.Sprintf("%d_%d", userID, postID)
}

// loginAttemptWindow is the failed-login sliding window, kept in the shared
// cache (keyed by client IP + username) so it survives across app processes
// the way the rate-limiting exercise expects.
const loginAttemptTTL = 5 * time.Minute

func loginAttemptKey(clientIP, username string) string {
	return fmt.Sprintf("login_attempts_%s_%s", clientIP, username)
}

func loadLoginAttempts(ctx context.Context, cache utils.Cache, clientIP, username string) []int64 {
	raw, ok := cache.Get(ctx, loginAttemptKey(clientIP, username))
	if !ok {
		return nil
	}
	var attempts []int64
	if err := json.Unmarshal(raw, &attempts); err != nil {
		return nil
	}
	// Prune outside the 5-minute horizon.
	cutoff := time.Now().Add(-loginAttemptTTL).Unix()
	pruned := attempts[:0]
	for _, ts := range attempts {
		if ts > cutoff {
			pruned = append(pruned, ts)
		}
	}
	return pruned
}

func storeLoginAttempts(ctx context.Context, cache utils.Cache, clientIP, username string, attempts []int64) {
	raw, err := json.Marshal(attempts)
	if err != nil {
		return
	}
	cache.Set(ctx, loginAttemptKey(clientIP, username), raw, loginAttemptTTL)
}

func clearLoginAttempts(ctx context.Context, cache utils.Cache, clientIP, username string) {
	cache.Delete(ctx, loginAttemptKey(clientIP, username))
}
