package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// stateSchema holds the single-row tables for admin and breaker state.
const stateSchema = `
CREATE TABLE IF NOT EXISTS admin (
    id     INTEGER PRIMARY KEY CHECK (id = 1),
    owner  TEXT    NOT NULL,
    paused INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS verifier_breaker (
    id                   INTEGER PRIMARY KEY DEFAULT 1,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    max_failures         INTEGER NOT NULL DEFAULT 5,
    cooldown_until       TEXT,
    cooldown_duration_s  INTEGER NOT NULL DEFAULT 600,
    total_failures       INTEGER NOT NULL DEFAULT 0,
    tripped_reason       TEXT
);
`

// ─── Admin ───────────────────────────────────────────────────────────────────

// SaveAdmin persists owner and pause flag.
func (s *SQLiteJournal) SaveAdmin(ctx context.Context, a domain.Admin) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin (id, owner, paused) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET owner = excluded.owner, paused = excluded.paused`,
		a.Owner.Hex(), boolToInt(a.Paused),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveAdmin: %w", err)
	}
	return nil
}

// loadAdmin returns nil when no admin row was ever written.
func (s *SQLiteJournal) loadAdmin(ctx context.Context) (*domain.Admin, error) {
	var owner string
	var paused int
	err := s.db.QueryRowContext(ctx, `SELECT owner, paused FROM admin WHERE id = 1`).Scan(&owner, &paused)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load admin: %w", err)
	}
	return &domain.Admin{Owner: common.HexToAddress(owner), Paused: paused != 0}, nil
}

// ─── Verifier breaker ────────────────────────────────────────────────────────

// SaveBreaker persists the verifier circuit breaker state.
func (s *SQLiteJournal) SaveBreaker(ctx context.Context, cb domain.VerifierBreaker) error {
	var cooldownUntil *time.Time
	if !cb.CooldownUntil.IsZero() {
		t := cb.CooldownUntil.UTC()
		cooldownUntil = &t
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verifier_breaker
		  (id, consecutive_failures, max_failures, cooldown_until, cooldown_duration_s, total_failures, tripped_reason)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  consecutive_failures=excluded.consecutive_failures, max_failures=excluded.max_failures,
		  cooldown_until=excluded.cooldown_until, cooldown_duration_s=excluded.cooldown_duration_s,
		  total_failures=excluded.total_failures, tripped_reason=excluded.tripped_reason`,
		cb.ConsecutiveFailures, cb.MaxFailures, nullTime(cooldownUntil),
		int(cb.CooldownDuration.Seconds()), cb.TotalFailures, cb.TrippedReason,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveBreaker: %w", err)
	}
	return nil
}

// loadBreaker returns nil when the breaker was never saved.
func (s *SQLiteJournal) loadBreaker(ctx context.Context) (*domain.VerifierBreaker, error) {
	var cb domain.VerifierBreaker
	var cooldownUntil, reason sql.NullString
	var cooldownDurationS int

	err := s.db.QueryRowContext(ctx, `
		SELECT consecutive_failures, max_failures, cooldown_until, cooldown_duration_s,
		       total_failures, tripped_reason
		FROM verifier_breaker WHERE id=1`).Scan(
		&cb.ConsecutiveFailures, &cb.MaxFailures, &cooldownUntil, &cooldownDurationS,
		&cb.TotalFailures, &reason,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load breaker: %w", err)
	}

	cb.CooldownDuration = time.Duration(cooldownDurationS) * time.Second
	cb.TrippedReason = reason.String
	if cooldownUntil.Valid && cooldownUntil.String != "" {
		cb.CooldownUntil = parseTime(cooldownUntil.String)
	}
	return &cb, nil
}
