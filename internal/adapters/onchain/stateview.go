package onchain

// stateview.go: lector de precios on-chain.
//
// Lee sqrtPriceX96 de un pool de Uniswap v4 a través del contrato StateView
// (getSlot0). Implementa ports.PriceReader, así que el controller puede
// evaluar posiciones restauradas contra el precio real de la cadena sin
// pasar por el venue local.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/ports"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
)

// ErrPoolNotInitialized is returned when slot0 holds a zero price.
var ErrPoolNotInitialized = errors.New("onchain: pool not initialized")

var stateViewABI abi.ABI

func init() {
	var err error
	stateViewABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getSlot0",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "poolId", "type": "bytes32"}],
			"outputs": [
				{"name": "sqrtPriceX96", "type": "uint160"},
				{"name": "tick", "type": "int24"},
				{"name": "protocolFee", "type": "uint24"},
				{"name": "lpFee", "type": "uint24"}
			]
		}
	]`))
	if err != nil {
		panic("stateview abi parse: " + err.Error())
	}
}

// Slot0 is the decoded getSlot0 result.
type Slot0 struct {
	SqrtPriceX96 *uint256.Int
	Tick         int32
	ProtocolFee  uint32
	LPFee        uint32
}

type cachedPrice struct {
	sqrt *uint256.Int
	at   time.Time
}

// StateViewReader implements ports.PriceReader over an RPC endpoint.
type StateViewReader struct {
	caller    ethereum.ContractCaller
	stateView common.Address
	ttl       time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	cache map[domain.PoolID]cachedPrice
}

var _ ports.PriceReader = (*StateViewReader)(nil)

// Dial connects to rpcURL and returns a reader for the StateView at stateView.
// ttl > 0 caches each pool price for that long.
func Dial(ctx context.Context, rpcURL string, stateView common.Address, ttl time.Duration) (*StateViewReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.Dial: dial rpc %s: %w", rpcURL, err)
	}
	return NewStateViewReader(client, stateView, ttl), nil
}

// NewStateViewReader wraps any contract caller (an ethclient, a simulated backend).
func NewStateViewReader(caller ethereum.ContractCaller, stateView common.Address, ttl time.Duration) *StateViewReader {
	return &StateViewReader{
		caller:    caller,
		stateView: stateView,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[domain.PoolID]cachedPrice),
	}
}

// CurrentSqrtPrice implements ports.PriceReader.
func (r *StateViewReader) CurrentSqrtPrice(ctx context.Context, pool domain.PoolID) (*uint256.Int, error) {
	if r.ttl > 0 {
		r.mu.RLock()
		c, ok := r.cache[pool]
		r.mu.RUnlock()
		if ok && r.now().Sub(c.at) < r.ttl {
			return c.sqrt.Clone(), nil
		}
	}

	slot0, err := r.Slot0(ctx, pool)
	if err != nil {
		return nil, err
	}
	if slot0.SqrtPriceX96.IsZero() {
		return nil, fmt.Errorf("onchain.CurrentSqrtPrice: %s: %w", pool.Hex(), ErrPoolNotInitialized)
	}

	if r.ttl > 0 {
		r.mu.Lock()
		r.cache[pool] = cachedPrice{sqrt: slot0.SqrtPriceX96.Clone(), at: r.now()}
		r.mu.Unlock()
	}
	return slot0.SqrtPriceX96, nil
}

// Slot0 calls StateView.getSlot0(pool) at the latest block.
func (r *StateViewReader) Slot0(ctx context.Context, pool domain.PoolID) (Slot0, error) {
	callData, err := stateViewABI.Pack("getSlot0", pool)
	if err != nil {
		return Slot0{}, fmt.Errorf("onchain.Slot0: pack: %w", err)
	}

	to := r.stateView
	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: callData}, nil)
	if err != nil {
		return Slot0{}, fmt.Errorf("onchain.Slot0: call: %w", err)
	}
	slot0, err := decodeSlot0(result)
	if err != nil {
		return Slot0{}, fmt.Errorf("onchain.Slot0: %w", err)
	}

	slog.Debug("onchain: slot0", "pool", pool.Hex(), "sqrt_price", slot0.SqrtPriceX96.Dec(), "tick", slot0.Tick)
	return slot0, nil
}

func decodeSlot0(data []byte) (Slot0, error) {
	vals, err := stateViewABI.Unpack("getSlot0", data)
	if err != nil {
		return Slot0{}, fmt.Errorf("unpack: %w", err)
	}
	if len(vals) != 4 {
		return Slot0{}, fmt.Errorf("unpack: expected 4 values, got %d", len(vals))
	}

	sqrtBig, ok := vals[0].(*big.Int)
	if !ok {
		return Slot0{}, fmt.Errorf("unpack: sqrtPriceX96 has type %T", vals[0])
	}
	sqrtP, overflow := uint256.FromBig(sqrtBig)
	if overflow {
		return Slot0{}, fmt.Errorf("unpack: sqrtPriceX96 overflows")
	}

	out := Slot0{SqrtPriceX96: sqrtP}
	if v, ok := vals[1].(*big.Int); ok {
		out.Tick = int32(v.Int64())
	}
	if v, ok := vals[2].(*big.Int); ok {
		out.ProtocolFee = uint32(v.Uint64())
	}
	if v, ok := vals[3].(*big.Int); ok {
		out.LPFee = uint32(v.Uint64())
	}
	return out, nil
}

// SetClock replaces the time source of the cache (tests).
func (r *StateViewReader) SetClock(now func() time.Time) {
	r.now = now
}
