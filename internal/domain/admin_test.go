package domain_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/stretchr/testify/assert"
)

func breakerSnapshot(cb domain.VerifierBreaker) domain.VerifierBreaker { return cb }

func TestVerifierBreaker_TripsAndCoolsDown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := domain.VerifierBreaker{MaxFailures: 2, CooldownDuration: time.Minute}
	assert.True(t, cb.IsOpen(now))

	cb.RecordFailure(now, "timeout")
	assert.True(t, cb.IsOpen(now))
	cb.RecordFailure(now, "timeout")

	// IsOpen se puede consultar sobre copias devueltas por valor
	assert.False(t, breakerSnapshot(cb).IsOpen(now))
	assert.False(t, breakerSnapshot(cb).IsOpen(now.Add(59*time.Second)))
	assert.True(t, breakerSnapshot(cb).IsOpen(now.Add(time.Minute)))
	assert.Equal(t, "timeout", cb.TrippedReason)
	assert.Equal(t, uint64(2), cb.TotalFailures)
	assert.Zero(t, cb.ConsecutiveFailures)
}

func TestVerifierBreaker_SuccessResetsStreak(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := domain.VerifierBreaker{MaxFailures: 2, CooldownDuration: time.Minute}

	cb.RecordFailure(now, "a")
	cb.RecordSuccess()
	cb.RecordFailure(now, "b")
	assert.True(t, cb.IsOpen(now))
	assert.Equal(t, 1, cb.ConsecutiveFailures)
}
