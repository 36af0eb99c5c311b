package controller_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/verifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAfterSwap_BreachBoundaryIsInclusive(t *testing.T) {
	for _, s := range []verifier.Strategy{verifier.StrategyEnforce, verifier.StrategyDecryptBit} {
		t.Run(string(s), func(t *testing.T) {
			h := newHarness(t, withStrategy(s))
			h.initPool(t, pool, 2000)

			il := ilBetween(t, 2000, 4000)
			require.Greater(t, il, uint64(500))

			atThreshold := h.deposit(t, pool, alice, il)
			aboveIL := h.deposit(t, pool, bob, il+1)

			report := h.swapTo(t, pool, 4000)
			assert.Equal(t, []uint64{atThreshold}, report.Breached)
			assert.Equal(t, 1, report.NotBreached)
			assert.Zero(t, report.Failed)

			assert.Equal(t, domain.StatusWithdrawnAutomatic, h.status(t, pool, atThreshold))
			assert.Equal(t, domain.StatusActive, h.status(t, pool, aboveIL))

			n := len(h.notes.got)
			require.GreaterOrEqual(t, n, 2)
			breached, withdrawn := h.notes.got[n-2], h.notes.got[n-1]
			assert.Equal(t, domain.NotifyThresholdBreached, breached.Kind)
			assert.Equal(t, il, breached.ILBps)
			assert.Equal(t, domain.NotifyPositionWithdrawn, withdrawn.Kind)
			assert.Equal(t, domain.WithdrawAutomatic, withdrawn.Reason)
			assert.Equal(t, atThreshold, withdrawn.PositionID)
			assert.NotEqual(t, breached.ID, withdrawn.ID)
		})
	}
}

func TestAfterSwap_SingleBreachLeavesOthersUntouched(t *testing.T) {
	h := newHarness(t)
	h.initPool(t, pool, 2000)

	thresholds := []uint64{9000, 9000, 100, 9000, 9000}
	for _, th := range thresholds {
		h.deposit(t, pool, alice, th)
	}
	before := h.ctrl.GetActivePositions(pool)

	report := h.swapTo(t, pool, 4000)
	assert.Equal(t, []uint64{3}, report.Breached)
	assert.Equal(t, 5, report.Visited)

	state, _ := h.ctrl.PoolState(pool)
	assert.Equal(t, []uint64{1, 2, 4, 5}, state.ActiveIDs)
	assert.Equal(t, uint64(4), state.ProtectedLiquidity)
	assert.Equal(t, uint64(1), state.TotalBreached)

	for _, p := range before {
		if p.ID == 3 {
			continue
		}
		got, err := h.ctrl.GetPosition(pool, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	closed, _ := h.ctrl.GetPosition(pool, 3)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, t0, *closed.ClosedAt)
}

func TestAfterSwap_ClosedPositionsStayClosed(t *testing.T) {
	h := newHarness(t)
	h.initPool(t, pool, 2000)
	id := h.deposit(t, pool, alice, 100)

	h.swapTo(t, pool, 4000)
	require.Equal(t, domain.StatusWithdrawnAutomatic, h.status(t, pool, id))

	report := h.swapTo(t, pool, 9000)
	assert.Zero(t, report.Visited)
	assert.Equal(t, 1, h.notes.count(domain.NotifyThresholdBreached))
}

func TestAfterSwap_BoundedScanCoversEveryPosition(t *testing.T) {
	const n, maxScan = 120, 50
	h := newHarness(t, withMaxScan(maxScan))
	h.initPool(t, pool, 2000)
	for i := 0; i < n; i++ {
		h.deposit(t, pool, alice, 9999)
	}

	seenCursor := []uint64{}
	for i := 0; i < 3; i++ {
		report := h.swapTo(t, pool, 2500)
		assert.Equal(t, maxScan, report.Visited)
		assert.Equal(t, n-maxScan, report.Deferred)
		// todas comparten precio de entrada: un solo cifrado por swap
		assert.Equal(t, 1, report.Encryptions)

		state, _ := h.ctrl.PoolState(pool)
		seenCursor = append(seenCursor, state.Cursor)
	}
	assert.Equal(t, []uint64{51, 101, 31}, seenCursor)
}

func TestAfterSwap_EveryBreachClosedWithinCeilSwaps(t *testing.T) {
	const n, maxScan = 120, 50
	h := newHarness(t, withMaxScan(maxScan))
	h.initPool(t, pool, 2000)
	for i := 0; i < n; i++ {
		h.deposit(t, pool, alice, 1)
	}

	swaps := (n + maxScan - 1) / maxScan
	for i := 0; i < swaps; i++ {
		report := h.swapTo(t, pool, 4000)
		assert.LessOrEqual(t, report.Visited, maxScan)
	}

	state, _ := h.ctrl.PoolState(pool)
	assert.Empty(t, state.ActiveIDs)
	assert.Equal(t, uint64(n), state.TotalBreached)
	assert.Zero(t, state.ProtectedLiquidity)
	assert.Equal(t, n, h.notes.count(domain.NotifyThresholdBreached))
}

func TestAfterSwap_MathErrorSkipsOnlyThatPosition(t *testing.T) {
	h := newHarness(t)
	h.initPool(t, pool, 1)
	cheap := h.deposit(t, pool, alice, 100)

	h.setPrice(t, pool, 2000)
	normal := h.deposit(t, pool, bob, 100)

	// 4000/1 supera el ratio máximo
	report := h.swapTo(t, pool, 4000)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []uint64{normal}, report.Breached)
	assert.Equal(t, domain.StatusActive, h.status(t, pool, cheap))
	assert.Zero(t, h.ctrl.Breaker().TotalFailures)
}

func TestAfterSwap_PriceErrorAbortsSwap(t *testing.T) {
	h := newHarness(t)
	h.initPool(t, pool, 2000)
	h.deposit(t, pool, alice, 100)
	before, _ := h.ctrl.PoolState(pool)

	h.venue.err = errors.New("rpc down")
	err := h.ctrl.AfterSwap(context.Background(), domain.SwapExecuted{Pool: pool})
	assert.ErrorContains(t, err, "rpc down")

	after, _ := h.ctrl.PoolState(pool)
	assert.Equal(t, before, after)
}

func TestAfterSwap_UnknownPoolIsNoop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.AfterSwap(context.Background(), domain.SwapExecuted{Pool: pool}))
	report, ok := h.ctrl.LastScan(pool)
	require.True(t, ok)
	assert.Zero(t, report.Visited)
	assert.False(t, report.Skipped)
}

func TestAfterSwap_MissingControllerGrantIsVerifierError(t *testing.T) {
	h := newHarness(t)
	h.initPool(t, pool, 2000)
	h.enc.dropControllerG = true
	id := h.deposit(t, pool, alice, 100)

	report := h.swapTo(t, pool, 4000)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, report.Breached)
	assert.Equal(t, domain.StatusActive, h.status(t, pool, id))
	assert.Equal(t, uint64(1), h.ctrl.Breaker().TotalFailures)
}

func TestAfterSwap_BreakerTripsAndRecovers(t *testing.T) {
	h := newHarness(t, withBreaker(3, time.Minute))
	h.initPool(t, pool, 2000)
	for i := 0; i < 5; i++ {
		h.deposit(t, pool, alice, 9000)
	}

	h.enc.failCompare = true
	report := h.swapTo(t, pool, 2500)
	assert.Equal(t, 3, report.Visited)
	assert.Equal(t, 3, report.Failed)
	assert.False(t, h.ctrl.Breaker().IsOpen(h.clock))

	state, _ := h.ctrl.PoolState(pool)
	assert.Equal(t, uint64(4), state.Cursor)

	// en cooldown el swap pasa sin chequeo
	report = h.swapTo(t, pool, 2600)
	assert.True(t, report.Skipped)
	assert.Contains(t, report.SkipReason, "cooling down")
	assert.Equal(t, 5, report.Deferred)
	assert.Zero(t, report.Visited)

	h.clock = t0.Add(2 * time.Minute)
	h.enc.failCompare = false
	report = h.swapTo(t, pool, 2600)
	assert.False(t, report.Skipped)
	assert.Equal(t, 5, report.Visited)
	assert.Equal(t, 5, report.NotBreached)

	cb := h.ctrl.Breaker()
	assert.Zero(t, cb.ConsecutiveFailures)
	assert.Equal(t, uint64(3), cb.TotalFailures)
	assert.Len(t, h.ctrl.GetActivePositions(pool), 5)
}

func TestAfterSwap_PausedSkipsCheck(t *testing.T) {
	h := newHarness(t)
	h.initPool(t, pool, 2000)
	id := h.deposit(t, pool, alice, 100)
	require.NoError(t, h.ctrl.Pause(context.Background(), admin))

	report := h.swapTo(t, pool, 4000)
	assert.True(t, report.Skipped)
	assert.Equal(t, domain.ErrPaused.Error(), report.SkipReason)
	assert.Equal(t, domain.StatusActive, h.status(t, pool, id))

	// una llamada directa sí reporta la pausa
	_, err := h.ctrl.CheckPool(context.Background(), pool)
	assert.ErrorIs(t, err, domain.ErrPaused)
	assert.Equal(t, domain.StatusActive, h.status(t, pool, id))

	require.NoError(t, h.ctrl.Unpause(context.Background(), admin))
	report = h.swapTo(t, pool, 4000)
	assert.Equal(t, []uint64{id}, report.Breached)
}
