package domain

// ilmath.go: matemática de impermanent loss en punto fijo.
//
// Convenciones:
//   - Precios lineales y cantidades: punto fijo de 18 decimales (WAD = 1e18).
//   - Precios raíz: codificación Q64.96 del venue (sqrtPriceX96 = sqrt(p) × 2^96).
//   - Resultados de IL: basis points enteros (10000 = 100%).
//
// Nunca se multiplican dos valores de ancho completo sin escalar antes: todos
// los productos intermedios pasan por MulDivOverflow (512 bits).

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// BasisPoints es el denominador de los resultados (100% = 10000 bps).
	BasisPoints = 10_000

	// MaxPriceRatio acota current/entry antes de la raíz cuadrada.
	MaxPriceRatio = 1000
)

var (
	// WAD es la unidad del punto fijo lineal.
	WAD = uint256.NewInt(1_000_000_000_000_000_000)

	// Q96 es la escala de la codificación raíz (2^96).
	Q96 = new(uint256.Int).Lsh(uint256.NewInt(1), 96)

	q192 = new(uint256.Int).Lsh(uint256.NewInt(1), 192)

	// Límites de sqrtPriceX96 aceptados por el venue (ticks ±887272).
	MinSqrtPrice = uint256.NewInt(4295128739)
	MaxSqrtPrice = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")

	maxRatioWAD = new(uint256.Int).Mul(uint256.NewInt(MaxPriceRatio), WAD)
	bpsInt      = uint256.NewInt(BasisPoints)
	two         = uint256.NewInt(2)
)

// PositionValue es el resultado del chequeo alternativo por valor.
type PositionValue struct {
	Hold  *uint256.Int // valor de mantener las cantidades de entrada, en unidades de token1 (WAD)
	LP    *uint256.Int // valor de las cantidades rebalanceadas por el invariante x·y=k
	ILBps uint64
}

// SqrtPriceToPrice convierte sqrtPriceX96 a precio lineal WAD.
//
// Fórmula: price = sqrtP² / 2^192 × WAD, evaluada en dos etapas:
//
//	step  = sqrtP × WAD / 2^96      (= sqrt(p) en WAD, cabe en 124 bits)
//	price = step × sqrtP / 2^96
func SqrtPriceToPrice(sqrtPriceX96 *uint256.Int) (*uint256.Int, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Lt(MinSqrtPrice) || sqrtPriceX96.Gt(MaxSqrtPrice) {
		return nil, fmt.Errorf("domain.SqrtPriceToPrice: %w", ErrInvalidPrice)
	}
	step, overflow := new(uint256.Int).MulDivOverflow(sqrtPriceX96, WAD, Q96)
	if overflow {
		return nil, fmt.Errorf("domain.SqrtPriceToPrice: stage 1: %w", ErrInvalidPrice)
	}
	price, overflow := new(uint256.Int).MulDivOverflow(step, sqrtPriceX96, Q96)
	if overflow {
		return nil, fmt.Errorf("domain.SqrtPriceToPrice: stage 2: %w", ErrInvalidPrice)
	}
	if price.IsZero() {
		// por debajo de 1e-18 no hay resolución WAD
		return nil, fmt.Errorf("domain.SqrtPriceToPrice: below WAD resolution: %w", ErrInvalidPrice)
	}
	return price, nil
}

// PriceToSqrtPrice es la inversa de SqrtPriceToPrice: sqrt(price × 2^192 / WAD).
// Se usa para sembrar pools y en tests; el core nunca calcula precios propios.
func PriceToSqrtPrice(price *uint256.Int) (*uint256.Int, error) {
	if price == nil || price.IsZero() {
		return nil, fmt.Errorf("domain.PriceToSqrtPrice: %w", ErrInvalidPrice)
	}
	scaled, overflow := new(uint256.Int).MulDivOverflow(price, q192, WAD)
	if overflow {
		return nil, fmt.Errorf("domain.PriceToSqrtPrice: %w", ErrInvalidPrice)
	}
	sqrtP := Sqrt(scaled)
	if sqrtP.Lt(MinSqrtPrice) || sqrtP.Gt(MaxSqrtPrice) {
		return nil, fmt.Errorf("domain.PriceToSqrtPrice: out of range: %w", ErrInvalidPrice)
	}
	return sqrtP, nil
}

// CalculateIL devuelve el impermanent loss en bps entre el precio de entrada y el actual.
//
// Fórmula:
//
//	ratio  = current / entry
//	result = 2·sqrt(ratio) / (1 + ratio)
//	IL     = (1 - result) × 10000   si result < 1, si no 0
//
// Falla con ErrInvalidPrice si algún precio es cero y con ErrRatioTooLarge si
// ratio > MaxPriceRatio.
func CalculateIL(entryPrice, currentPrice *uint256.Int) (uint64, error) {
	if entryPrice == nil || currentPrice == nil || entryPrice.IsZero() || currentPrice.IsZero() {
		return 0, fmt.Errorf("domain.CalculateIL: %w", ErrInvalidPrice)
	}

	ratio, overflow := new(uint256.Int).MulDivOverflow(currentPrice, WAD, entryPrice)
	if overflow || ratio.Gt(maxRatioWAD) {
		return 0, fmt.Errorf("domain.CalculateIL: ratio %s: %w", ratio.Dec(), ErrRatioTooLarge)
	}

	// ratio ≤ 1000·WAD, así que ratio·WAD < 2^140
	sqrtRatio := Sqrt(new(uint256.Int).Mul(ratio, WAD))
	numerator := new(uint256.Int).Mul(sqrtRatio, two)
	denominator := new(uint256.Int).Add(WAD, ratio)
	result, _ := new(uint256.Int).MulDivOverflow(numerator, WAD, denominator)

	if !result.Lt(WAD) {
		return 0, nil
	}
	loss := new(uint256.Int).Sub(WAD, result)
	loss.Mul(loss, bpsInt)
	loss.Div(loss, WAD)
	return loss.Uint64(), nil
}

// Sqrt es la raíz cuadrada entera por iteración babilónica.
// Arranca en (x+1)/2 y sigue mientras la estimación decrece estrictamente.
// Garantiza y² ≤ x < (y+1)².
func Sqrt(x *uint256.Int) *uint256.Int {
	if x.IsZero() {
		return new(uint256.Int)
	}
	// (x+1)/2 sin desbordar cuando x = 2^256-1
	z := new(uint256.Int).Rsh(x, 1)
	if x.Uint64()&1 == 1 {
		z.Add(z, uint256.NewInt(1))
	}
	y := x.Clone()
	q := new(uint256.Int)
	for z.Lt(y) {
		y.Set(z)
		q.Div(x, z)
		z.Add(q, z)
		z.Rsh(z, 1)
	}
	return y
}

// CalculatePositionValue es el chequeo cruzado por valor usando k = amount0·amount1.
//
// A precio p las cantidades rebalanceadas son sqrt(k/p) de token0 y sqrt(k·p) de
// token1. Ambos lados se valoran en token1:
//
//	hold = amount0·p + amount1
//	lp   = sqrt(k/p)·p + sqrt(k·p)
//	IL   = max(0, (hold - lp) / hold × 10000)
func CalculatePositionValue(amount0, amount1, price *uint256.Int) (PositionValue, error) {
	if price == nil || price.IsZero() {
		return PositionValue{}, fmt.Errorf("domain.CalculatePositionValue: %w", ErrInvalidPrice)
	}
	if amount0 == nil || amount1 == nil || (amount0.IsZero() && amount1.IsZero()) {
		return PositionValue{}, fmt.Errorf("domain.CalculatePositionValue: %w", ErrInvalidAmount)
	}

	k, overflow := new(uint256.Int).MulDivOverflow(amount0, amount1, WAD)
	if overflow {
		return PositionValue{}, fmt.Errorf("domain.CalculatePositionValue: k: %w", ErrInvalidAmount)
	}

	kOverP, overflow := new(uint256.Int).MulDivOverflow(k, WAD, price)
	if overflow {
		return PositionValue{}, fmt.Errorf("domain.CalculatePositionValue: k/p: %w", ErrInvalidAmount)
	}
	kOverPWide, overflow := new(uint256.Int).MulOverflow(kOverP, WAD)
	if overflow {
		return PositionValue{}, fmt.Errorf("domain.CalculatePositionValue: k/p scale: %w", ErrInvalidAmount)
	}
	kTimesP, overflow := new(uint256.Int).MulOverflow(k, price)
	if overflow {
		return PositionValue{}, fmt.Errorf("domain.CalculatePositionValue: k·p: %w", ErrInvalidAmount)
	}
	lp0 := Sqrt(kOverPWide)
	lp1 := Sqrt(kTimesP)

	hold, err := valueInToken1(amount0, amount1, price)
	if err != nil {
		return PositionValue{}, fmt.Errorf("domain.CalculatePositionValue: hold: %w", err)
	}
	lp, err := valueInToken1(lp0, lp1, price)
	if err != nil {
		return PositionValue{}, fmt.Errorf("domain.CalculatePositionValue: lp: %w", err)
	}

	out := PositionValue{Hold: hold, LP: lp}
	if hold.Gt(lp) {
		gap := new(uint256.Int).Sub(hold, lp)
		bps, _ := new(uint256.Int).MulDivOverflow(gap, bpsInt, hold)
		out.ILBps = bps.Uint64()
	}
	return out, nil
}

// PriceChangeBps devuelve el cambio de precio con signo en bps: (new-old)/old × 10000.
func PriceChangeBps(oldPrice, newPrice *uint256.Int) (int64, error) {
	if oldPrice == nil || newPrice == nil || oldPrice.IsZero() {
		return 0, fmt.Errorf("domain.PriceChangeBps: %w", ErrInvalidPrice)
	}
	negative := newPrice.Lt(oldPrice)
	diff := new(uint256.Int)
	if negative {
		diff.Sub(oldPrice, newPrice)
	} else {
		diff.Sub(newPrice, oldPrice)
	}
	bps, overflow := new(uint256.Int).MulDivOverflow(diff, bpsInt, oldPrice)
	if overflow || !bps.IsUint64() || bps.Uint64() > uint64(1<<63-1) {
		return 0, fmt.Errorf("domain.PriceChangeBps: %w", ErrRatioTooLarge)
	}
	if negative {
		return -int64(bps.Uint64()), nil
	}
	return int64(bps.Uint64()), nil
}

// valueInToken1 devuelve amount0·p + amount1 en WAD.
func valueInToken1(amount0, amount1, price *uint256.Int) (*uint256.Int, error) {
	v0, overflow := new(uint256.Int).MulDivOverflow(amount0, price, WAD)
	if overflow {
		return nil, ErrInvalidAmount
	}
	total, overflow := new(uint256.Int).AddOverflow(v0, amount1)
	if overflow {
		return nil, ErrInvalidAmount
	}
	return total, nil
}
