package venue

// pool_manager.go: pool manager en proceso.
//
// Mantiene el precio (sqrtPriceX96) y las reservas agregadas de cada pool y
// llama a los hooks registrados después de aplicar cada operación. Si un hook
// devuelve error la operación se revierte completa, igual que una transacción
// revertida en la cadena. Las operaciones se serializan con opMu: un evento a la vez.

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	ErrPoolNotInitialized = errors.New("venue: pool not initialized")
	ErrPoolExists         = errors.New("venue: pool already initialized")
	ErrMissingPermissions = errors.New("venue: hook does not declare required permissions")
	ErrInvalidPoolKey     = errors.New("venue: invalid pool key")
)

// PoolKey identifies a pool by its currencies, fee tier and hook.
type PoolKey struct {
	Currency0   common.Address
	Currency1   common.Address
	Fee         uint32
	TickSpacing int32
	Hooks       common.Address
}

// ID returns keccak256(abi-encoded key), the pool id.
func (k PoolKey) ID() domain.PoolID {
	var buf []byte
	buf = append(buf, common.LeftPadBytes(k.Currency0.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(k.Currency1.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(new(big.Int).SetUint64(uint64(k.Fee)).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(int64(k.TickSpacing)).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(k.Hooks.Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

func (k PoolKey) validate() error {
	if k.Currency0 == (common.Address{}) && k.Currency1 == (common.Address{}) {
		return fmt.Errorf("%w: both currencies empty", ErrInvalidPoolKey)
	}
	if k.Currency0.Cmp(k.Currency1) >= 0 {
		return fmt.Errorf("%w: currency0 must sort before currency1", ErrInvalidPoolKey)
	}
	if k.TickSpacing <= 0 {
		return fmt.Errorf("%w: tick spacing %d", ErrInvalidPoolKey, k.TickSpacing)
	}
	return nil
}

// Pool is the venue-side state of one pool.
type Pool struct {
	Key          PoolKey
	SqrtPriceX96 *uint256.Int
	Reserve0     *uint256.Int
	Reserve1     *uint256.Int
	Swaps        uint64
}

func (p *Pool) clone() *Pool {
	return &Pool{
		Key:          p.Key,
		SqrtPriceX96: p.SqrtPriceX96.Clone(),
		Reserve0:     p.Reserve0.Clone(),
		Reserve1:     p.Reserve1.Clone(),
		Swaps:        p.Swaps,
	}
}

// PoolManager is an in-process venue dispatching callbacks to one hook.
type PoolManager struct {
	opMu    sync.Mutex // serializa operaciones completas (estado + hook)
	stateMu sync.RWMutex
	pools   map[domain.PoolID]*Pool
	hooks   ports.Hooks
	now     func() time.Time
}

var _ ports.PriceReader = (*PoolManager)(nil)

// NewPoolManager creates an empty venue. hooks may be nil (no protection); a
// non-nil hook must subscribe to all four callbacks.
func NewPoolManager(hooks ports.Hooks) (*PoolManager, error) {
	pm := &PoolManager{
		pools: make(map[domain.PoolID]*Pool),
		now:   time.Now,
	}
	if hooks != nil {
		if err := pm.SetHooks(hooks); err != nil {
			return nil, err
		}
	}
	return pm, nil
}

// SetHooks registers the hook contract. It fails if any required callback is missing.
func (pm *PoolManager) SetHooks(hooks ports.Hooks) error {
	p := hooks.Permissions()
	if !p.AfterInitialize || !p.AfterAddLiquidity || !p.AfterRemoveLiquidity || !p.AfterSwap {
		return fmt.Errorf("venue.SetHooks: %w (%+v)", ErrMissingPermissions, p)
	}
	pm.opMu.Lock()
	defer pm.opMu.Unlock()
	pm.hooks = hooks
	return nil
}

// SetClock replaces the time source stamped on events.
func (pm *PoolManager) SetClock(now func() time.Time) {
	pm.opMu.Lock()
	defer pm.opMu.Unlock()
	pm.now = now
}

// CurrentSqrtPrice implements ports.PriceReader.
func (pm *PoolManager) CurrentSqrtPrice(_ context.Context, id domain.PoolID) (*uint256.Int, error) {
	pm.stateMu.RLock()
	defer pm.stateMu.RUnlock()
	p, ok := pm.pools[id]
	if !ok {
		return nil, fmt.Errorf("venue.CurrentSqrtPrice: %s: %w", id.Hex(), ErrPoolNotInitialized)
	}
	return p.SqrtPriceX96.Clone(), nil
}

// Pool returns a copy of the venue state of a pool.
func (pm *PoolManager) Pool(id domain.PoolID) (Pool, bool) {
	pm.stateMu.RLock()
	defer pm.stateMu.RUnlock()
	p, ok := pm.pools[id]
	if !ok {
		return Pool{}, false
	}
	return *p.clone(), true
}

// Initialize creates the pool at sqrtPriceX96 and fires AfterInitialize.
func (pm *PoolManager) Initialize(ctx context.Context, key PoolKey, sqrtPriceX96 *uint256.Int) (domain.PoolID, error) {
	if err := key.validate(); err != nil {
		return domain.PoolID{}, fmt.Errorf("venue.Initialize: %w", err)
	}
	if _, err := domain.SqrtPriceToPrice(sqrtPriceX96); err != nil {
		return domain.PoolID{}, fmt.Errorf("venue.Initialize: %w", err)
	}

	pm.opMu.Lock()
	defer pm.opMu.Unlock()

	id := key.ID()
	pm.stateMu.Lock()
	if _, ok := pm.pools[id]; ok {
		pm.stateMu.Unlock()
		return id, fmt.Errorf("venue.Initialize: %s: %w", id.Hex(), ErrPoolExists)
	}
	pm.pools[id] = &Pool{
		Key:          key,
		SqrtPriceX96: sqrtPriceX96.Clone(),
		Reserve0:     new(uint256.Int),
		Reserve1:     new(uint256.Int),
	}
	pm.stateMu.Unlock()

	if pm.hooks != nil {
		ev := domain.PoolInitialized{Pool: id, SqrtPriceX96: sqrtPriceX96.Clone(), At: pm.now()}
		if err := pm.hooks.AfterInitialize(ctx, ev); err != nil {
			pm.stateMu.Lock()
			delete(pm.pools, id)
			pm.stateMu.Unlock()
			return id, fmt.Errorf("venue.Initialize: hook reverted: %w", err)
		}
	}
	return id, nil
}

// AddLiquidity deposits amounts into the pool and fires AfterAddLiquidity with hookData.
func (pm *PoolManager) AddLiquidity(ctx context.Context, id domain.PoolID, owner common.Address, amount0, amount1 *uint256.Int, hookData []byte) error {
	return pm.apply(ctx, id, func(p *Pool) {
		if amount0 != nil {
			p.Reserve0.Add(p.Reserve0, amount0)
		}
		if amount1 != nil {
			p.Reserve1.Add(p.Reserve1, amount1)
		}
	}, func(ctx context.Context, at time.Time) error {
		return pm.hooks.AfterAddLiquidity(ctx, domain.LiquidityAdded{
			Pool:     id,
			Owner:    owner,
			Amount0:  cloneOrNil(amount0),
			Amount1:  cloneOrNil(amount1),
			HookData: append([]byte(nil), hookData...),
			At:       at,
		})
	})
}

// RemoveLiquidity withdraws the owner's liquidity. positionID 0 lets the hook
// pick the owner's newest position.
func (pm *PoolManager) RemoveLiquidity(ctx context.Context, id domain.PoolID, owner common.Address, positionID uint64) error {
	return pm.apply(ctx, id, nil, func(ctx context.Context, at time.Time) error {
		return pm.hooks.AfterRemoveLiquidity(ctx, domain.LiquidityRemoved{
			Pool:       id,
			Owner:      owner,
			PositionID: positionID,
			At:         at,
		})
	})
}

// Swap moves the pool price to targetSqrtPriceX96 and fires AfterSwap.
func (pm *PoolManager) Swap(ctx context.Context, id domain.PoolID, sender common.Address, targetSqrtPriceX96, amountIn *uint256.Int) error {
	if _, err := domain.SqrtPriceToPrice(targetSqrtPriceX96); err != nil {
		return fmt.Errorf("venue.Swap: %w", err)
	}
	var zeroForOne bool
	return pm.apply(ctx, id, func(p *Pool) {
		// token0 entra, el precio (token1 por token0) baja
		zeroForOne = targetSqrtPriceX96.Lt(p.SqrtPriceX96)
		p.SqrtPriceX96 = targetSqrtPriceX96.Clone()
		p.Swaps++
	}, func(ctx context.Context, at time.Time) error {
		return pm.hooks.AfterSwap(ctx, domain.SwapExecuted{
			Pool:       id,
			Sender:     sender,
			ZeroForOne: zeroForOne,
			AmountIn:   cloneOrNil(amountIn),
			At:         at,
		})
	})
}

// apply runs mutate on the pool, then the hook callback; a hook error restores
// the previous pool state.
func (pm *PoolManager) apply(ctx context.Context, id domain.PoolID, mutate func(*Pool), hook func(context.Context, time.Time) error) error {
	pm.opMu.Lock()
	defer pm.opMu.Unlock()

	pm.stateMu.Lock()
	p, ok := pm.pools[id]
	if !ok {
		pm.stateMu.Unlock()
		return fmt.Errorf("venue: %s: %w", id.Hex(), ErrPoolNotInitialized)
	}
	prev := p.clone()
	if mutate != nil {
		mutate(p)
	}
	pm.stateMu.Unlock()

	if pm.hooks == nil {
		return nil
	}
	if err := hook(ctx, pm.now()); err != nil {
		pm.stateMu.Lock()
		pm.pools[id] = prev
		pm.stateMu.Unlock()
		return fmt.Errorf("venue: hook reverted: %w", err)
	}
	return nil
}

func cloneOrNil(x *uint256.Int) *uint256.Int {
	if x == nil {
		return nil
	}
	return x.Clone()
}
