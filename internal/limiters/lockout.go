package limiters

import "time"

// LockoutConfig holds the account lockout thresholds.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
	Reason    string
}

// LockState is the lockout status of an account at a given instant.
type LockState int

const (
	// LockActive means the account is not locked.
	LockActive LockState = iota
	// LockLocked means the lock is still in force.
	LockLocked
	// LockExpired means a lock was recorded but has lapsed. The caller must
	// clear the attempt counter before evaluating the current attempt.
	LockExpired
)

func (s LockState) String() string {
	switch s {
	case LockActive:
		return "active"
	case LockLocked:
		return "locked"
	case LockExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// LockoutPolicy is a pure state machine over the persisted
// (loginAttempts, lockoutUntil) pair. It never touches storage; the login
// flow persists whatever it decides.
type LockoutPolicy struct {
	config LockoutConfig
}

// NewLockoutPolicy creates a lockout policy.
func NewLockoutPolicy(cfg LockoutConfig) LockoutPolicy {
	return LockoutPolicy{config: cfg}
}

// Evaluate classifies the stored lock and returns the remaining lock time
// when the account is still locked.
func (p LockoutPolicy) Evaluate(lockoutUntil *time.Time, now time.Time) (LockState, time.Duration) {
	if lockoutUntil == nil || lockoutUntil.IsZero() {
		return LockActive, 0
	}
	if lockoutUntil.After(now) {
		return LockLocked, lockoutUntil.Sub(now)
	}
	return LockExpired, 0
}

// OnFailure decides whether the attempt count reached after a failed
// password check locks the account, and until when.
func (p LockoutPolicy) OnFailure(attempts int, now time.Time) (bool, time.Time) {
	if p.config.Threshold <= 0 || attempts < p.config.Threshold {
		return false, time.Time{}
	}
	return true, now.Add(p.config.Duration)
}

// Reason is the human-readable reason stored alongside a lock.
func (p LockoutPolicy) Reason() string {
	return p.config.Reason
}

// Threshold returns the failure count that triggers a lock.
func (p LockoutPolicy) Threshold() int {
	return p.config.Threshold
}
