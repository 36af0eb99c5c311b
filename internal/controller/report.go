package controller

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/holiman/uint256"
)

// CurrentIL computes the impermanent loss of an active position at the venue's
// current price. It never touches the position or the verifier.
func (c *Controller) CurrentIL(ctx context.Context, pool domain.PoolID, id uint64) (domain.PositionIL, error) {
	pos, err := c.GetPosition(pool, id)
	if err != nil {
		return domain.PositionIL{}, err
	}
	if !pos.Active() {
		return domain.PositionIL{}, fmt.Errorf("controller.CurrentIL: %s is %s: %w", pos.Key(), pos.Status, domain.ErrPositionNotFound)
	}

	current, err := c.currentPrice(ctx, pool)
	if err != nil {
		return domain.PositionIL{}, fmt.Errorf("controller.CurrentIL: %w", err)
	}
	report := positionIL(pos, current)
	if report.Err != nil {
		return report, fmt.Errorf("controller.CurrentIL: %w", report.Err)
	}
	return report, nil
}

// ILReport evaluates every active position of every pool, reading each pool
// price once. Per-position failures land in PositionIL.Err.
func (c *Controller) ILReport(ctx context.Context) ([]domain.PositionIL, error) {
	var out []domain.PositionIL
	for _, pool := range c.registry.Pools() {
		active := c.registry.ActivePositions(pool)
		if len(active) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		current, err := c.currentPrice(ctx, pool)
		for _, pos := range active {
			if err != nil {
				out = append(out, domain.PositionIL{Key: pos.Key(), Owner: pos.Owner, Err: err})
				continue
			}
			out = append(out, positionIL(pos, current))
		}
	}
	return out, nil
}

func (c *Controller) currentPrice(ctx context.Context, pool domain.PoolID) (*uint256.Int, error) {
	sqrtPrice, err := c.venue.CurrentSqrtPrice(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("read price: %w", err)
	}
	return domain.SqrtPriceToPrice(sqrtPrice)
}

func positionIL(pos domain.Position, current *uint256.Int) domain.PositionIL {
	out := domain.PositionIL{Key: pos.Key(), Owner: pos.Owner, CurrentPrice: current.Clone()}

	entry, err := domain.SqrtPriceToPrice(pos.EntrySqrtPrice)
	if err != nil {
		out.Err = fmt.Errorf("entry price: %w", err)
		return out
	}
	out.EntryPrice = entry

	if out.ILBps, err = domain.CalculateIL(entry, current); err != nil {
		out.Err = err
		return out
	}
	if v, err := domain.CalculatePositionValue(pos.Amount0, pos.Amount1, current); err == nil {
		out.ValueILBps = v.ILBps
	}
	return out
}
