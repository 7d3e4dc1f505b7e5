// services/pending.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"instacam-backend/models"
	"instacam-backend/utils"

	"github.com/gosimple/slug"
)

const pendingSessionKey = "pending_ctf_discoveries"

// DefaultPendingTTL bounds how long the cache backstop keeps a pending
// discovery alive if the session is lost across the login transition.
const DefaultPendingTTL = 30 * time.Minute

// PendingDiscovery is a bug discovery made before the acting party was
// authenticated, held until the session's owner logs in.
type PendingDiscovery struct {
	BugTitle       string `json:"bug_title"`
	Points         int    `json:"points"`
	TargetUsername string `json:"target_username,omitempty"`
	TokenUsername  string `json:"token_username,omitempty"`
	Timestamp      int64  `json:"timestamp"`
	SessionKey     string `json:"session_key"`
}

// SessionBag is the slice of fiber's session API the pending store needs.
// *session.Session satisfies it; tests substitute an in-memory fake.
type SessionBag interface {
	ID() string
	Get(key string) interface{}
	Set(key string, value interface{})
	Save() error
}

// knownPendingBugs is the fixed priority order redemption walks at login.
var knownPendingBugs = []struct {
	Title  string
	Points int
}{
	{"Missing Rate Limiting in Login", 75},
	{"Invalid Password Reset UID Format", 100},
	{"Invalid Password Reset Token Format", 100},
	{"Empty Password Reset Token", 100},
	{"Malformed Password Reset Token", 100},
	{"Invalid Base64 in Password Reset Token", 100},
	{"Predictable Password Reset Token", 100},
	{"SQL Injection in User Search", 100},
	{"XPath Injection in User Search", 100},
}

// PendingService bridges discoveries across the login boundary. Entries live
// in the session (authoritative) and are mirrored into the cache under every
// scope key (backstop, TTL-bound) because the session is rotated at login and
// either store alone may have been evicted by redemption time.
type PendingService struct {
	Cache utils.Cache
	TTL   time.Duration
}

func NewPendingService(cache utils.Cache) *PendingService {
	return &PendingService{Cache: cache, TTL: DefaultPendingTTL}
}

func pendingCacheKey(bugTitle, scope string) string {
	return fmt.Sprintf("ctf_pending_%s_%s", strings.ReplaceAll(slug.Make(bugTitle), "-", "_"), scope)
}

func loadPending(sess SessionBag) []PendingDiscovery {
	raw, _ := sess.Get(pendingSessionKey).(string)
	if raw == "" {
		return nil
	}
	var list []PendingDiscovery
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		log.Printf("[CTF PENDING] corrupt pending list in session %s: %v", sess.ID(), err)
		return nil
	}
	return list
}

func storePending(sess SessionBag, list []PendingDiscovery) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	sess.Set(pendingSessionKey, string(raw))
	return sess.Save()
}

// Record stores a pending discovery for the session. Idempotent per
// (session, bug title): a second call with the same pair is a no-op for the
// session list, though the cache mirror is refreshed either way. scopes are
// the cache key suffixes to mirror under; the session ID is always included.
func (p *PendingService) Record(ctx context.Context, sess SessionBag, d PendingDiscovery, scopes ...string) error {
	d.SessionKey = sess.ID()
	if d.Timestamp == 0 {
		d.Timestamp = time.Now().Unix()
	}

	list := loadPending(sess)
	already := false
	for _, existing := range list {
		if existing.BugTitle == d.BugTitle {
			already = true
			break
		}
	}
	if !already {
		list = append(list, d)
		if err := storePending(sess, list); err != nil {
			return err
		}
		log.Printf("🎯 [CTF PENDING] %q stored for session %s", d.BugTitle, sess.ID())
	} else {
		log.Printf("[CTF PENDING] %q already pending for session %s", d.BugTitle, sess.ID())
	}

	// Always refresh the cache backstop, even when the session already had
	// the entry — the cache may have expired independently.
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	allScopes := append([]string{sess.ID()}, scopes...)
	for _, scope := range allScopes {
		p.Cache.Set(ctx, pendingCacheKey(d.BugTitle, scope), raw, p.TTL)
	}
	return nil
}

// Redeem converts every pending discovery for the session into an award for
// the freshly authenticated user, walking the known-bug list in priority
// order. Cache entries under any of the scopes are merged into the session
// list first, then each redeemed entry is removed from both stores. All
// matched bugs are redeemed in one pass; an entry whose award fails to
// persist stays in both stores for the next login to retry. Redundant
// redemption attempts (two concurrent logins for one session) degrade to the
// scoring engine's idempotent no-op.
func (p *PendingService) Redeem(ctx context.Context, sess SessionBag, user *models.User, scoring *ScoringService, scopes ...string) []AwardResult {
	allScopes := append([]string{sess.ID()}, scopes...)

	list := loadPending(sess)
	for _, known := range knownPendingBugs {
		if hasPending(list, known.Title) {
			continue
		}
		for _, scope := range allScopes {
			raw, ok := p.Cache.Get(ctx, pendingCacheKey(known.Title, scope))
			if !ok {
				continue
			}
			var d PendingDiscovery
			if err := json.Unmarshal(raw, &d); err != nil || d.BugTitle != known.Title {
				continue
			}
			log.Printf("[CTF PENDING] merged cached %q (scope %s) into session %s", known.Title, scope, sess.ID())
			list = append(list, d)
			break
		}
	}

	var results []AwardResult
	redeemed := map[string]bool{}
	for _, known := range knownPendingBugs {
		d, ok := findPending(list, known.Title)
		if !ok {
			continue
		}
		res, err := scoring.Award(user, d.BugTitle, known.Points)
		if err != nil {
			// Nothing was credited: keep the entry in both stores so a later
			// login can retry.
			log.Printf("⚠️ [CTF PENDING] keeping %q pending for session %s, award failed: %v", d.BugTitle, sess.ID(), err)
			continue
		}
		log.Printf("🎉 [CTF PENDING] redeemed %q for user %s (awarded=%t)", d.BugTitle, user.Username, res.Awarded)
		results = append(results, res)
		redeemed[d.BugTitle] = true
		for _, scope := range allScopes {
			p.Cache.Delete(ctx, pendingCacheKey(d.BugTitle, scope))
		}
	}
	remaining := list[:0]
	for _, d := range list {
		if !redeemed[d.BugTitle] {
			remaining = append(remaining, d)
		}
	}
	if err := storePending(sess, remaining); err != nil {
		log.Printf("[CTF PENDING] failed to clear session %s after redemption: %v", sess.ID(), err)
	}
	return results
}

func hasPending(list []PendingDiscovery, title string) bool {
	_, ok := findPending(list, title)
	return ok
}

func findPending(list []PendingDiscovery, title string) (PendingDiscovery, bool) {
	for _, d := range list {
		if d.BugTitle == title {
			return d, true
		}
	}
	return PendingDiscovery{}, false
}
