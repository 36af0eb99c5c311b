package controller_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentIL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initPool(t, pool, 2000)
	id := h.deposit(t, pool, alice, 9000)

	h.setPrice(t, pool, 4000)
	got, err := h.ctrl.CurrentIL(ctx, pool, id)
	require.NoError(t, err)
	assert.Equal(t, ilBetween(t, 2000, 4000), got.ILBps)
	assert.InDelta(t, 572, float64(got.ValueILBps), 10)
	assert.Equal(t, alice, got.Owner)

	// solo lectura: la posición sigue activa y sin notificaciones nuevas
	assert.Equal(t, domain.StatusActive, h.status(t, pool, id))
	assert.Equal(t, 0, h.notes.count(domain.NotifyThresholdBreached))

	_, err = h.ctrl.CurrentIL(ctx, pool, 42)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	require.NoError(t, h.ctrl.AfterRemoveLiquidity(ctx, domain.LiquidityRemoved{Pool: pool, Owner: alice}))
	_, err = h.ctrl.CurrentIL(ctx, pool, id)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestILReport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	other := common.HexToHash("0x9002")

	h.initPool(t, pool, 2000)
	h.initPool(t, other, 10)
	h.deposit(t, pool, alice, 9000)
	h.deposit(t, pool, bob, 9000)
	h.deposit(t, other, alice, 9000)

	h.setPrice(t, pool, 2000)
	delete(h.venue.prices, other)

	report, err := h.ctrl.ILReport(ctx)
	require.NoError(t, err)
	require.Len(t, report, 3)

	var ok, failed int
	for _, r := range report {
		if r.Err != nil {
			failed++
			assert.Equal(t, other, r.Key.Pool)
			continue
		}
		ok++
		assert.Zero(t, r.ILBps)
		assert.Equal(t, pool, r.Key.Pool)
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)

	h.venue.err = errors.New("rpc down")
	report, err = h.ctrl.ILReport(ctx)
	require.NoError(t, err)
	for _, r := range report {
		assert.ErrorContains(t, r.Err, "rpc down")
	}
}
