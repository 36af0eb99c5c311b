package ports

import (
	"context"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/holiman/uint256"
)

// PriceReader is the read-only view of the venue the controller needs.
type PriceReader interface {
	// CurrentSqrtPrice returns the pool's current price as sqrtPriceX96.
	CurrentSqrtPrice(ctx context.Context, pool domain.PoolID) (*uint256.Int, error)
}

// Hooks is the set of venue callbacks a protection controller subscribes to.
// Every callback runs after the venue applied the operation; a returned error
// reverts that operation on the venue side.
type Hooks interface {
	Permissions() HookPermissions
	AfterInitialize(ctx context.Context, ev domain.PoolInitialized) error
	AfterAddLiquidity(ctx context.Context, ev domain.LiquidityAdded) error
	AfterRemoveLiquidity(ctx context.Context, ev domain.LiquidityRemoved) error
	AfterSwap(ctx context.Context, ev domain.SwapExecuted) error
}

// HookPermissions declares which callbacks the hook wants to receive.
type HookPermissions struct {
	AfterInitialize      bool
	AfterAddLiquidity    bool
	AfterRemoveLiquidity bool
	AfterSwap            bool
}
