package controller

// scan.go: chequeo acotado de posiciones tras cada swap.
//
// Cada swap revisa como máximo MaxScan posiciones activas empezando en el cursor
// persistido del pool y dando la vuelta al final de la lista. El cursor avanza
// al primer id no visitado, así que con N activas todas se revisan en
// ceil(N/MaxScan) swaps, sin importar su antigüedad.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/registry"
	"github.com/alejandrodnm/ilguard/internal/verifier"
	"github.com/holiman/uint256"
)

// ScanReport summarizes one bounded check of a pool.
type ScanReport struct {
	Pool        domain.PoolID
	Visited     int
	Breached    []uint64
	NotBreached int
	Failed      int // verifier errors and per-position math errors
	Deferred    int // active positions left for the next swaps
	Encryptions int
	Skipped     bool
	SkipReason  string
}

// CheckPool evaluates the next window of active positions of pool and closes
// every position whose IL reached its encrypted threshold. While paused it
// returns ErrPaused with a skipped report; AfterSwap swallows it.
func (c *Controller) CheckPool(ctx context.Context, pool domain.PoolID) (ScanReport, error) {
	report := ScanReport{Pool: pool}

	if c.admin.Paused {
		report.Skipped = true
		report.SkipReason = domain.ErrPaused.Error()
		c.lastScan[pool] = report
		return report, fmt.Errorf("controller.CheckPool: %w", domain.ErrPaused)
	}

	state, ok := c.registry.Pool(pool)
	if !ok || !state.Enabled || len(state.ActiveIDs) == 0 {
		c.lastScan[pool] = report
		return report, nil
	}

	now := c.now().UTC()
	if !c.breaker.IsOpen(now) {
		report.Skipped = true
		report.SkipReason = fmt.Sprintf("verifier breaker cooling down until %s (%s)",
			c.breaker.CooldownUntil.Format("15:04:05"), c.breaker.TrippedReason)
		report.Deferred = len(state.ActiveIDs)
		c.lastScan[pool] = report
		return report, nil
	}

	sqrtPrice, err := c.venue.CurrentSqrtPrice(ctx, pool)
	if err != nil {
		return report, fmt.Errorf("controller.CheckPool: read price: %w", err)
	}
	currentPrice, err := domain.SqrtPriceToPrice(sqrtPrice)
	if err != nil {
		return report, fmt.Errorf("controller.CheckPool: %w", err)
	}

	window := registry.ScanWindow(state.ActiveIDs, state.Cursor, c.cfg.MaxScan)
	report.Deferred = window.Deferred
	if window.Deferred > 0 {
		slog.Debug("controller: scan truncated",
			"pool", pool.Hex(), "checked", len(window.IDs), "deferred", window.Deferred)
	}

	session := c.verifier.NewSession()
	breaker := c.breaker
	breakerChanged := false

	var cs domain.Changeset
	next := state.Clone()
	next.Cursor = window.Next

	for _, id := range window.IDs {
		pos, ok := c.registry.Position(domain.PositionKey{Pool: pool, ID: id})
		if !ok || !pos.Active() {
			continue
		}
		report.Visited++

		entryPrice, err := domain.SqrtPriceToPrice(pos.EntrySqrtPrice)
		if err != nil {
			report.Failed++
			slog.Warn("controller: invalid entry price", "position", pos.Key().String(), "err", err)
			continue
		}
		ilBps, err := domain.CalculateIL(entryPrice, currentPrice)
		if err != nil {
			report.Failed++
			slog.Warn("controller: IL calculation failed", "position", pos.Key().String(), "err", err)
			continue
		}

		outcome := session.Check(ctx, pos.EntrySqrtPrice, ilBps, pos.Threshold)
		switch outcome.Kind {
		case verifier.NotBreached:
			report.NotBreached++
			breaker.RecordSuccess()

		case verifier.Breached:
			breaker.RecordSuccess()
			report.Breached = append(report.Breached, id)
			cs.Positions = append(cs.Positions, closePosition(pos, domain.StatusWithdrawnAutomatic, now))
			cs.Notifications = append(cs.Notifications, c.breachNotifications(pos, ilBps, currentPrice, now)...)
			next.ActiveIDs = registry.RemoveID(next.ActiveIDs, id)
			if next.ProtectedLiquidity > 0 {
				next.ProtectedLiquidity--
			}
			next.TotalBreached++

		case verifier.VerifierError:
			report.Failed++
			breaker.RecordFailure(now, outcome.Err.Error())
			breakerChanged = true
			slog.Warn("controller: verifier error", "position", pos.Key().String(), "err", outcome.Err)
		}

		if !breaker.IsOpen(now) {
			slog.Warn("controller: verifier breaker tripped, stopping scan",
				"pool", pool.Hex(), "until", breaker.CooldownUntil.Format("15:04:05"))
			next.Cursor = id + 1
			break
		}
	}
	report.Encryptions = session.Encryptions()

	if next.Cursor != state.Cursor || len(report.Breached) > 0 {
		cs.Pools = append(cs.Pools, next)
	}
	if err := c.commit(ctx, cs); err != nil {
		return report, fmt.Errorf("controller.CheckPool: %w", err)
	}

	if breakerChanged || breaker.ConsecutiveFailures != c.breaker.ConsecutiveFailures {
		c.breaker = breaker
		if c.journal != nil {
			if err := c.journal.SaveBreaker(ctx, breaker); err != nil {
				slog.Warn("controller: save breaker", "err", err)
			}
		}
	}
	c.lastScan[pool] = report

	if len(report.Breached) > 0 || report.Failed > 0 {
		slog.Info("controller: swap check",
			"pool", pool.Hex(),
			"visited", report.Visited,
			"breached", len(report.Breached),
			"failed", report.Failed,
			"deferred", report.Deferred,
		)
	}
	return report, nil
}

func (c *Controller) breachNotifications(pos domain.Position, ilBps uint64, currentPrice *uint256.Int, at time.Time) []domain.Notification {
	var valueIL uint64
	if v, err := domain.CalculatePositionValue(pos.Amount0, pos.Amount1, currentPrice); err == nil {
		valueIL = v.ILBps
	}

	breached := c.notification(domain.NotifyThresholdBreached, at)
	breached.Pool = pos.Pool
	breached.PositionID = pos.ID
	breached.Owner = pos.Owner
	breached.ILBps = ilBps
	breached.ValueILBps = valueIL

	withdrawn := breached
	withdrawn.ID = c.notification(domain.NotifyPositionWithdrawn, at).ID
	withdrawn.Kind = domain.NotifyPositionWithdrawn
	withdrawn.Reason = domain.WithdrawAutomatic

	return []domain.Notification{breached, withdrawn}
}
