package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jmcleod/sks/token"
)

// credentialRateLimiter tracks failed credential checks per (realm, user,
// client address) and enforces exponential backoff. A client that guesses
// wrong only locks itself out; the same user keeps minting from elsewhere.
// Realms are keyed by digest so limiter state holds no raw realm text.
type credentialRateLimiter struct {
	mu          sync.Mutex
	attempts    map[limiterKey]*attemptRecord
	maxFailures int
	lastSweep   time.Time
	now         func() time.Time
}

type limiterKey struct {
	realm  token.RealmID
	user   string
	client string
}

type attemptRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

const (
	// defaultMaxFailures is the number of consecutive failures before lockout begins.
	defaultMaxFailures = 5
	// baseLockout is the initial lockout duration after maxFailures is reached.
	baseLockout = 1 * time.Minute
	// maxLockout caps the exponential backoff.
	maxLockout = 15 * time.Minute
	// attemptExpiry is how long after the last failure before the record is
	// garbage-collected.
	attemptExpiry = 1 * time.Hour
)

func newCredentialRateLimiter(maxFailures int) *credentialRateLimiter {
	return &credentialRateLimiter{
		attempts:    make(map[limiterKey]*attemptRecord),
		maxFailures: maxFailures,
		now:         time.Now,
	}
}

// check reports whether (realm, user, client) is locked out, along with how
// long the caller should wait.
func (rl *credentialRateLimiter) check(realm token.RealmID, user, client string) (blocked bool, retryAfter time.Duration) {
	if rl == nil {
		return false, 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.maybeSweep(now)

	key := limiterKey{realm, user, client}
	rec, ok := rl.attempts[key]
	if !ok {
		return false, 0
	}
	if now.Sub(rec.lastFailure) > attemptExpiry {
		delete(rl.attempts, key)
		return false, 0
	}
	if now.Before(rec.lockedUntil) {
		return true, rec.lockedUntil.Sub(now)
	}
	return false, 0
}

// recordFailure increments the failure counter and applies exponential
// backoff once maxFailures is reached.
func (rl *credentialRateLimiter) recordFailure(realm token.RealmID, user, client string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := limiterKey{realm, user, client}
	rec, ok := rl.attempts[key]
	if !ok {
		rec = &attemptRecord{}
		rl.attempts[key] = rec
	}
	now := rl.now()
	rec.failures++
	rec.lastFailure = now

	if rec.failures >= rl.maxFailures {
		// baseLockout * 2^(failures - maxFailures)
		shift := rec.failures - rl.maxFailures
		lockout := baseLockout
		for i := 0; i < shift; i++ {
			lockout *= 2
			if lockout > maxLockout {
				lockout = maxLockout
				break
			}
		}
		rec.lockedUntil = now.Add(lockout)
	}
}

// recordSuccess resets the failure counter after a successful mint.
func (rl *credentialRateLimiter) recordSuccess(realm token.RealmID, user, client string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, limiterKey{realm, user, client})
}

// maybeSweep drops expired records at most once per expiry period.
// Callers hold rl.mu.
func (rl *credentialRateLimiter) maybeSweep(now time.Time) {
	if now.Sub(rl.lastSweep) < attemptExpiry {
		return
	}
	rl.lastSweep = now
	for key, rec := range rl.attempts {
		if now.Sub(rec.lastFailure) > attemptExpiry {
			delete(rl.attempts, key)
		}
	}
}

func (rl *credentialRateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.attempts)
}

// writeRateLimited sends a 429 Too Many Requests response.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeText(w, http.StatusTooManyRequests, "ERR: too many failed attempts\n")
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
