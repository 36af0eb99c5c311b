package controller_test

import (
	"context"
	"testing"

	"github.com/alejandrodnm/ilguard/internal/adapters/venue"
	"github.com/alejandrodnm/ilguard/internal/controller"
	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/registry"
	"github.com/alejandrodnm/ilguard/internal/verifier"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPause_OwnerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.ctrl.Pause(ctx, alice)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.True(t, domain.IsAuthorization(err))
	assert.False(t, h.ctrl.Paused())

	require.NoError(t, h.ctrl.Pause(ctx, admin))
	assert.True(t, h.ctrl.Paused())

	// idempotente
	require.NoError(t, h.ctrl.Pause(ctx, admin))
	assert.Equal(t, 1, h.notes.count(domain.NotifyPaused))

	assert.ErrorIs(t, h.ctrl.Unpause(ctx, bob), domain.ErrUnauthorized)
	require.NoError(t, h.ctrl.Unpause(ctx, admin))
	assert.False(t, h.ctrl.Paused())
	assert.Equal(t, 1, h.notes.count(domain.NotifyUnpaused))
}

func TestTransferOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.ctrl.TransferOwnership(ctx, alice, bob), domain.ErrUnauthorized)
	assert.ErrorIs(t, h.ctrl.TransferOwnership(ctx, admin, common.Address{}), domain.ErrZeroAddress)
	assert.Equal(t, admin, h.ctrl.Owner())

	require.NoError(t, h.ctrl.TransferOwnership(ctx, admin, alice))
	assert.Equal(t, alice, h.ctrl.Owner())

	assert.ErrorIs(t, h.ctrl.Pause(ctx, admin), domain.ErrUnauthorized)
	require.NoError(t, h.ctrl.Pause(ctx, alice))

	last := h.notes.got[len(h.notes.got)-1]
	assert.Equal(t, domain.NotifyPaused, last.Kind)
	assert.Equal(t, alice, last.Owner)
}

func TestPaused_HooksAreNoops(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initPool(t, pool, 2000)
	id := h.deposit(t, pool, alice, 100)
	require.NoError(t, h.ctrl.Pause(ctx, admin))

	// depósito sin protección
	require.NoError(t, h.ctrl.AfterAddLiquidity(ctx, domain.LiquidityAdded{
		Pool: pool, Owner: bob, HookData: h.enc.EncryptInput(100, bob),
	}))
	assert.Empty(t, h.ctrl.GetUserPositions(bob))

	// retiro no registrado
	require.NoError(t, h.ctrl.AfterRemoveLiquidity(ctx, domain.LiquidityRemoved{Pool: pool, Owner: alice}))
	assert.Equal(t, domain.StatusActive, h.status(t, pool, id))

	state, _ := h.ctrl.PoolState(pool)
	assert.Equal(t, uint64(1), state.NextID)
}

// El venue completa sus operaciones aunque la protección esté pausada.
func TestPaused_VenueOperationsStillComplete(t *testing.T) {
	ctx := context.Background()
	pm, err := venue.NewPoolManager(nil)
	require.NoError(t, err)

	enc := newHarness(t).enc
	v, err := verifier.New(enc, verifier.StrategyEnforce, controllerAddr)
	require.NoError(t, err)
	ctrl, err := controller.New(controller.Config{Address: controllerAddr, Owner: admin}, pm, v, registry.New(), nil)
	require.NoError(t, err)
	require.NoError(t, pm.SetHooks(ctrl))

	key := venue.PoolKey{
		Currency0:   common.HexToAddress("0x01"),
		Currency1:   common.HexToAddress("0x02"),
		Fee:         3000,
		TickSpacing: 60,
		Hooks:       controllerAddr,
	}
	id, err := pm.Initialize(ctx, key, sqrtAt(t, 2000))
	require.NoError(t, err)
	require.NoError(t, pm.AddLiquidity(ctx, id, alice, wad(1), wad(2000), enc.EncryptInput(100, alice)))
	require.Len(t, ctrl.GetActivePositions(id), 1)

	require.NoError(t, ctrl.Pause(ctx, admin))
	require.NoError(t, pm.Swap(ctx, id, bob, sqrtAt(t, 4000), wad(1)))

	p, ok := pm.Pool(id)
	require.True(t, ok)
	assert.Equal(t, sqrtAt(t, 4000).Dec(), p.SqrtPriceX96.Dec())
	assert.Equal(t, uint64(1), p.Swaps)
	assert.Len(t, ctrl.GetActivePositions(id), 1)

	require.NoError(t, ctrl.Unpause(ctx, admin))
	require.NoError(t, pm.Swap(ctx, id, bob, sqrtAt(t, 4100), wad(1)))
	assert.Empty(t, ctrl.GetActivePositions(id))
}

// Un payload inválido revierte el depósito completo en el venue.
func TestInvalidPayload_RevertsVenueDeposit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pm, err := venue.NewPoolManager(nil)
	require.NoError(t, err)
	v, err := verifier.New(h.enc, verifier.StrategyEnforce, controllerAddr)
	require.NoError(t, err)
	ctrl, err := controller.New(controller.Config{Address: controllerAddr, Owner: admin}, pm, v, registry.New(), nil)
	require.NoError(t, err)
	require.NoError(t, pm.SetHooks(ctrl))

	key := venue.PoolKey{
		Currency0:   common.HexToAddress("0x01"),
		Currency1:   common.HexToAddress("0x02"),
		Fee:         500,
		TickSpacing: 10,
		Hooks:       controllerAddr,
	}
	id, err := pm.Initialize(ctx, key, sqrtAt(t, 2000))
	require.NoError(t, err)

	err = pm.AddLiquidity(ctx, id, alice, wad(1), wad(2000), []byte{0xde, 0xad})
	assert.ErrorIs(t, err, domain.ErrInvalidCiphertext)

	p, _ := pm.Pool(id)
	assert.True(t, p.Reserve0.IsZero())
	assert.True(t, p.Reserve1.IsZero())
	assert.Empty(t, ctrl.GetUserPositions(alice))
}
