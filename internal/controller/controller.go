package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/ports"
	"github.com/alejandrodnm/ilguard/internal/registry"
	"github.com/alejandrodnm/ilguard/internal/verifier"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const (
	DefaultMaxScan         = 50
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 10 * time.Minute
)

// Config holds the controller settings.
type Config struct {
	Address         common.Address // principal the controller acts as with the encryption service
	Owner           common.Address // initial admin
	MaxScan         int            // active positions checked per swap
	BreakerFailures int            // consecutive verifier errors before cooldown
	BreakerCooldown time.Duration
}

// Controller drives the position lifecycle from venue callbacks.
//
// Calls are expected to be serialized by the venue (one event at a time), so
// the controller keeps no locks of its own.
type Controller struct {
	cfg       Config
	venue     ports.PriceReader
	verifier  *verifier.Verifier
	registry  *registry.Registry
	journal   ports.Journal
	notifiers []ports.Notifier

	admin    domain.Admin
	breaker  domain.VerifierBreaker
	lastScan map[domain.PoolID]ScanReport
	now      func() time.Time
}

var _ ports.Hooks = (*Controller)(nil)

// New creates a Controller. journal may be nil for a memory-only deployment.
func New(
	cfg Config,
	venue ports.PriceReader,
	v *verifier.Verifier,
	reg *registry.Registry,
	journal ports.Journal,
	notifiers ...ports.Notifier,
) (*Controller, error) {
	if venue == nil || v == nil || reg == nil {
		return nil, errors.New("controller.New: venue, verifier and registry are required")
	}
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("controller.New: owner: %w", domain.ErrZeroAddress)
	}
	if cfg.MaxScan <= 0 {
		cfg.MaxScan = DefaultMaxScan
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultBreakerCooldown
	}

	return &Controller{
		cfg:       cfg,
		venue:     venue,
		verifier:  v,
		registry:  reg,
		journal:   journal,
		notifiers: notifiers,
		admin:     domain.Admin{Owner: cfg.Owner},
		breaker: domain.VerifierBreaker{
			MaxFailures:      cfg.BreakerFailures,
			CooldownDuration: cfg.BreakerCooldown,
		},
		lastScan: make(map[domain.PoolID]ScanReport),
		now:      time.Now,
	}, nil
}

// SetClock replaces the time source (tests, replays).
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// Restore loads the journal snapshot into the registry, admin and breaker state.
func (c *Controller) Restore(ctx context.Context) error {
	if c.journal == nil {
		return nil
	}
	snap, err := c.journal.Load(ctx)
	if err != nil {
		return fmt.Errorf("controller.Restore: %w", err)
	}
	c.registry.Restore(snap.Positions, snap.Pools, snap.OwnerKeys)
	if snap.Admin != nil && snap.Admin.Owner != (common.Address{}) {
		c.admin = *snap.Admin
	}
	if snap.Breaker != nil {
		cb := *snap.Breaker
		cb.MaxFailures = c.breaker.MaxFailures
		cb.CooldownDuration = c.breaker.CooldownDuration
		c.breaker = cb
	}
	slog.Info("controller: state restored",
		"positions", len(snap.Positions),
		"pools", len(snap.Pools),
		"owner", c.admin.Owner.Hex(),
		"paused", c.admin.Paused,
	)
	return nil
}

// Permissions declares the four venue callbacks the controller needs.
func (c *Controller) Permissions() ports.HookPermissions {
	return ports.HookPermissions{
		AfterInitialize:      true,
		AfterAddLiquidity:    true,
		AfterRemoveLiquidity: true,
		AfterSwap:            true,
	}
}

// --- queries ---

// GetPosition returns the position stored under (pool, id).
func (c *Controller) GetPosition(pool domain.PoolID, id uint64) (domain.Position, error) {
	p, ok := c.registry.Position(domain.PositionKey{Pool: pool, ID: id})
	if !ok {
		return domain.Position{}, fmt.Errorf("controller.GetPosition: %s/%d: %w", pool.Hex(), id, domain.ErrPositionNotFound)
	}
	return p, nil
}

// GetActivePositions returns the pool's active positions in id order.
func (c *Controller) GetActivePositions(pool domain.PoolID) []domain.Position {
	return c.registry.ActivePositions(pool)
}

// GetUserPositions returns every position ever created by owner.
func (c *Controller) GetUserPositions(owner common.Address) []domain.Position {
	return c.registry.OwnerPositions(owner)
}

// GetSealedThreshold hands the encrypted threshold back to its owner only.
func (c *Controller) GetSealedThreshold(pool domain.PoolID, id uint64, requester common.Address) (domain.Ciphertext, error) {
	p, err := c.GetPosition(pool, id)
	if err != nil {
		return domain.Ciphertext{}, err
	}
	if requester != p.Owner {
		return domain.Ciphertext{}, fmt.Errorf("controller.GetSealedThreshold: %w", domain.ErrUnauthorized)
	}
	return p.Threshold, nil
}

// PoolState returns the aggregate for pool.
func (c *Controller) PoolState(pool domain.PoolID) (domain.PoolState, bool) {
	return c.registry.Pool(pool)
}

// Pools returns the ids of every known pool, sorted.
func (c *Controller) Pools() []domain.PoolID {
	return c.registry.Pools()
}

// PoolStates returns the aggregate of every known pool.
func (c *Controller) PoolStates() []domain.PoolState {
	ids := c.registry.Pools()
	out := make([]domain.PoolState, 0, len(ids))
	for _, id := range ids {
		if s, ok := c.registry.Pool(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// Owner returns the current admin.
func (c *Controller) Owner() common.Address {
	return c.admin.Owner
}

// Paused reports whether protection is paused.
func (c *Controller) Paused() bool {
	return c.admin.Paused
}

// Breaker returns a copy of the verifier circuit breaker.
func (c *Controller) Breaker() domain.VerifierBreaker {
	return c.breaker
}

// LastScan returns the report of the most recent swap check on pool.
func (c *Controller) LastScan(pool domain.PoolID) (ScanReport, bool) {
	r, ok := c.lastScan[pool]
	return r, ok
}

// --- internals ---

// commit persists the changeset, applies it to the registry and publishes the
// notifications. Nothing is applied if the journal rejects it.
func (c *Controller) commit(ctx context.Context, cs domain.Changeset) error {
	if cs.Empty() {
		return nil
	}
	if c.journal != nil {
		if err := c.journal.Commit(ctx, cs); err != nil {
			return fmt.Errorf("controller.commit: journal: %w", err)
		}
	}
	c.registry.Apply(cs)
	c.publish(ctx, cs.Notifications)
	return nil
}

func (c *Controller) publish(ctx context.Context, ns []domain.Notification) {
	if len(ns) == 0 {
		return
	}
	for _, n := range c.notifiers {
		if err := n.Notify(ctx, ns); err != nil {
			slog.Warn("controller: notifier error", "err", err)
		}
	}
}

func (c *Controller) notification(kind domain.NotificationKind, at time.Time) domain.Notification {
	return domain.Notification{
		ID:   uuid.New().String(),
		Kind: kind,
		At:   at,
	}
}

func (c *Controller) eventTime(at time.Time) time.Time {
	if at.IsZero() {
		return c.now().UTC()
	}
	return at.UTC()
}
