package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/registry"
	"github.com/alejandrodnm/ilguard/internal/verifier"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AfterInitialize enables protection for the pool. Repeated calls are no-ops.
func (c *Controller) AfterInitialize(ctx context.Context, ev domain.PoolInitialized) error {
	state, _ := c.registry.Pool(ev.Pool)
	if state.Enabled {
		slog.Debug("controller: pool already enabled", "pool", ev.Pool.Hex())
		return nil
	}
	state.Pool = ev.Pool
	state.Enabled = true

	n := c.notification(domain.NotifyPoolEnabled, c.eventTime(ev.At))
	n.Pool = ev.Pool

	if err := c.commit(ctx, domain.Changeset{
		Pools:         []domain.PoolState{state},
		Notifications: []domain.Notification{n},
	}); err != nil {
		return fmt.Errorf("controller.AfterInitialize: %w", err)
	}
	slog.Info("controller: pool enabled", "pool", ev.Pool.Hex())
	return nil
}

// AfterAddLiquidity registers a protected position for deposits carrying an
// encrypted threshold. Deposits without hook data, into pools that are not
// enabled, or while paused complete without protection.
func (c *Controller) AfterAddLiquidity(ctx context.Context, ev domain.LiquidityAdded) error {
	if c.admin.Paused {
		slog.Warn("controller: paused, deposit left unprotected", "pool", ev.Pool.Hex(), "owner", ev.Owner.Hex())
		return nil
	}
	if len(ev.HookData) == 0 {
		slog.Debug("controller: unprotected deposit", "pool", ev.Pool.Hex(), "owner", ev.Owner.Hex())
		return nil
	}
	state, ok := c.registry.Pool(ev.Pool)
	if !ok || !state.Enabled {
		slog.Debug("controller: pool not enabled, skipping", "pool", ev.Pool.Hex())
		return nil
	}
	if ev.Owner == (common.Address{}) {
		return fmt.Errorf("controller.AfterAddLiquidity: owner: %w", domain.ErrZeroAddress)
	}
	if err := verifier.ValidatePayload(ev.HookData); err != nil {
		return fmt.Errorf("controller.AfterAddLiquidity: %w", err)
	}

	sqrtPrice, err := c.venue.CurrentSqrtPrice(ctx, ev.Pool)
	if err != nil {
		return fmt.Errorf("controller.AfterAddLiquidity: read price: %w", err)
	}
	if _, err := domain.SqrtPriceToPrice(sqrtPrice); err != nil {
		return fmt.Errorf("controller.AfterAddLiquidity: %w", err)
	}

	// Seal es la última llamada antes del commit. Ingest y los grants quedan
	// en el servicio de cifrado aunque el journal falle; el handle huérfano no
	// está referenciado por ninguna posición.
	threshold, err := c.verifier.Seal(ctx, ev.HookData, ev.Owner)
	if err != nil {
		return fmt.Errorf("controller.AfterAddLiquidity: %w", err)
	}

	at := c.eventTime(ev.At)
	state.NextID++
	id := state.NextID
	state.ActiveIDs = append(state.ActiveIDs, id)
	state.ProtectedLiquidity++
	state.TotalCreated++

	pos := domain.Position{
		Owner:          ev.Owner,
		Pool:           ev.Pool,
		ID:             id,
		EntrySqrtPrice: sqrtPrice.Clone(),
		Amount0:        amountOrZero(ev.Amount0),
		Amount1:        amountOrZero(ev.Amount1),
		Threshold:      threshold,
		CreatedAt:      at,
		Status:         domain.StatusActive,
	}

	n := c.notification(domain.NotifyPositionCreated, at)
	n.Pool = ev.Pool
	n.PositionID = id
	n.Owner = ev.Owner

	if err := c.commit(ctx, domain.Changeset{
		Positions:     []domain.Position{pos},
		Pools:         []domain.PoolState{state},
		Notifications: []domain.Notification{n},
	}); err != nil {
		return fmt.Errorf("controller.AfterAddLiquidity: %w", err)
	}

	slog.Info("controller: position created",
		"pool", ev.Pool.Hex(),
		"position_id", id,
		"owner", ev.Owner.Hex(),
		"threshold", threshold.String(),
	)
	return nil
}

// AfterRemoveLiquidity closes the owner's matching active position. The IL at
// withdrawal is computed for the record only; it never blocks the removal.
func (c *Controller) AfterRemoveLiquidity(ctx context.Context, ev domain.LiquidityRemoved) error {
	if c.admin.Paused {
		slog.Warn("controller: paused, removal not tracked", "pool", ev.Pool.Hex(), "owner", ev.Owner.Hex())
		return nil
	}

	pos, ok := c.matchWithdrawal(ev)
	if !ok {
		slog.Debug("controller: no protected position for removal",
			"pool", ev.Pool.Hex(), "owner", ev.Owner.Hex(), "position_id", ev.PositionID)
		return nil
	}
	state, _ := c.registry.Pool(ev.Pool)

	ilBps, valueILBps := c.informationalIL(ctx, pos)

	at := c.eventTime(ev.At)
	closed := closePosition(pos, domain.StatusWithdrawnManual, at)
	state.ActiveIDs = registry.RemoveID(state.ActiveIDs, pos.ID)
	if state.ProtectedLiquidity > 0 {
		state.ProtectedLiquidity--
	}

	n := c.notification(domain.NotifyPositionWithdrawn, at)
	n.Pool = pos.Pool
	n.PositionID = pos.ID
	n.Owner = pos.Owner
	n.Reason = domain.WithdrawManual
	n.ILBps = ilBps
	n.ValueILBps = valueILBps

	if err := c.commit(ctx, domain.Changeset{
		Positions:     []domain.Position{closed},
		Pools:         []domain.PoolState{state},
		Notifications: []domain.Notification{n},
	}); err != nil {
		return fmt.Errorf("controller.AfterRemoveLiquidity: %w", err)
	}

	slog.Info("controller: position withdrawn",
		"pool", pos.Pool.Hex(),
		"position_id", pos.ID,
		"reason", domain.WithdrawManual,
		"il_bps", ilBps,
	)
	return nil
}

// AfterSwap runs the bounded breach check for the pool. A paused controller or
// a cooling-down verifier lets the swap through untouched.
func (c *Controller) AfterSwap(ctx context.Context, ev domain.SwapExecuted) error {
	report, err := c.CheckPool(ctx, ev.Pool)
	if err != nil && !errors.Is(err, domain.ErrPaused) {
		return fmt.Errorf("controller.AfterSwap: %w", err)
	}
	if report.Skipped {
		slog.Warn("controller: swap check skipped", "pool", ev.Pool.Hex(), "reason", report.SkipReason)
	}
	return nil
}

func (c *Controller) matchWithdrawal(ev domain.LiquidityRemoved) (domain.Position, bool) {
	if ev.PositionID == 0 {
		return c.registry.NewestActive(ev.Pool, ev.Owner)
	}
	pos, ok := c.registry.Position(domain.PositionKey{Pool: ev.Pool, ID: ev.PositionID})
	if !ok || !pos.Active() || pos.Owner != ev.Owner {
		return domain.Position{}, false
	}
	return pos, true
}

// informationalIL returns the price-ratio IL and the value-based IL at the
// current price. Failures are logged and reported as zero.
func (c *Controller) informationalIL(ctx context.Context, pos domain.Position) (ilBps, valueILBps uint64) {
	sqrtPrice, err := c.venue.CurrentSqrtPrice(ctx, pos.Pool)
	if err != nil {
		slog.Warn("controller: price unavailable for IL report", "pool", pos.Pool.Hex(), "err", err)
		return 0, 0
	}
	current, err := domain.SqrtPriceToPrice(sqrtPrice)
	if err != nil {
		slog.Warn("controller: invalid current price", "pool", pos.Pool.Hex(), "err", err)
		return 0, 0
	}
	entry, err := domain.SqrtPriceToPrice(pos.EntrySqrtPrice)
	if err == nil {
		if il, err := domain.CalculateIL(entry, current); err == nil {
			ilBps = il
		} else {
			slog.Warn("controller: IL calculation failed", "position", pos.Key().String(), "err", err)
		}
	}
	if v, err := domain.CalculatePositionValue(pos.Amount0, pos.Amount1, current); err == nil {
		valueILBps = v.ILBps
	}
	return ilBps, valueILBps
}

func closePosition(pos domain.Position, status domain.PositionStatus, at time.Time) domain.Position {
	closed := pos.Clone()
	closed.Status = status
	t := at
	closed.ClosedAt = &t
	return closed
}

func amountOrZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x.Clone()
}
