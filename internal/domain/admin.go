package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Admin holds the controller's administrative state.
type Admin struct {
	Owner  common.Address
	Paused bool
}

// VerifierBreaker tracks consecutive verifier failures and pauses comparisons
// for a cooldown once too many pile up.
type VerifierBreaker struct {
	ConsecutiveFailures int
	MaxFailures         int
	CooldownUntil       time.Time
	CooldownDuration    time.Duration
	TotalFailures       uint64
	TrippedReason       string
}

// IsOpen returns true if comparisons are allowed at now (breaker not cooling down).
func (cb VerifierBreaker) IsOpen(now time.Time) bool {
	return !now.Before(cb.CooldownUntil)
}

// RecordFailure counts a verifier error and may start a cooldown.
func (cb *VerifierBreaker) RecordFailure(now time.Time, reason string) {
	cb.ConsecutiveFailures++
	cb.TotalFailures++
	if cb.MaxFailures > 0 && cb.ConsecutiveFailures >= cb.MaxFailures {
		cb.CooldownUntil = now.Add(cb.CooldownDuration)
		cb.ConsecutiveFailures = 0
		cb.TrippedReason = reason
	}
}

// RecordSuccess resets the consecutive failure counter.
func (cb *VerifierBreaker) RecordSuccess() {
	cb.ConsecutiveFailures = 0
}
