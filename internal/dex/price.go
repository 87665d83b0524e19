package dex

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Tick bounds and sqrt ratio limits of the V3 pool contract.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	// Q96 and Q192 are the fixed-point scaling factors used by the pool.
	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	Q192 = new(big.Int).Lsh(big.NewInt(1), 192)

	MinSqrtRatio = big.NewInt(4295128739)
	MaxSqrtRatio = mustBigInt("1461446703485210103287273052203988822378723970342")

	q96Decimal  = decimal.NewFromBigInt(Q96, 0)
	q192Decimal = decimal.NewFromBigInt(Q192, 0)
	tickBase    = decimal.RequireFromString("1.0001")
)

func mustBigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid big int literal: " + s)
	}
	return v
}

// PriceToSqrtX96 encodes a token1/token0 price as floor(sqrt(price) * 2^96).
// The price must be positive. The result is monotonic in the input, so
// encoded values compare the same way the underlying prices do.
func PriceToSqrtX96(price decimal.Decimal) (*big.Int, error) {
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("price must be positive, got %s", price)
	}

	// sqrt(price) * 2^96 == sqrt(price * 2^192). Scaling before the square
	// root keeps everything in integers so the only truncation is the final
	// floor, matching what the pool enforces on initialize.
	scaled := price.Mul(q192Decimal).BigInt()
	if scaled.Sign() <= 0 {
		return nil, fmt.Errorf("price %s underflows sqrt ratio encoding", price)
	}

	result := new(big.Int).Sqrt(scaled)
	if result.Cmp(MinSqrtRatio) < 0 || result.Cmp(MaxSqrtRatio) > 0 {
		return nil, fmt.Errorf("sqrt ratio %s outside pool bounds", result)
	}
	return result, nil
}

// SqrtX96ToPrice decodes a sqrt ratio back to a token1/token0 price.
func SqrtX96ToPrice(sqrtPriceX96 *big.Int) (decimal.Decimal, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("sqrt ratio must be positive")
	}
	squared := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	return decimal.NewFromBigInt(squared, 0).DivRound(q192Decimal, 40), nil
}

// SqrtX96ToTick returns the largest tick whose price does not exceed the
// price encoded by sqrtPriceX96, i.e. floor(log(price) / log(1.0001)).
// The pool's own slot0 tick remains authoritative for the current tick;
// this mapping is only used to derive ranges.
func SqrtX96ToTick(sqrtPriceX96 *big.Int) (int32, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0, fmt.Errorf("sqrt ratio must be positive")
	}
	if sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) > 0 {
		return 0, fmt.Errorf("sqrt ratio %s outside pool bounds", sqrtPriceX96)
	}

	price, err := SqrtX96ToPrice(sqrtPriceX96)
	if err != nil {
		return 0, err
	}

	approx, _ := price.Float64()
	tick := int32(math.Floor(math.Log(approx) / math.Log(1.0001)))
	if tick < MinTick {
		tick = MinTick
	}
	if tick > MaxTick {
		tick = MaxTick
	}

	// Float64 puts us within a tick of the answer. Settle the boundary in
	// sqrt ratio space, where both sides floor identically, so the result
	// is the greatest tick whose encoded ratio does not exceed the input.
	for tick < MaxTick {
		next, err := TickToSqrtX96(tick + 1)
		if err != nil || next.Cmp(sqrtPriceX96) > 0 {
			break
		}
		tick++
	}
	for tick > MinTick {
		cur, err := TickToSqrtX96(tick)
		if err != nil || cur.Cmp(sqrtPriceX96) <= 0 {
			break
		}
		tick--
	}
	return tick, nil
}

// TickToPrice returns 1.0001^tick as a decimal price.
func TickToPrice(tick int32) decimal.Decimal {
	return powInt(tickBase, tick)
}

// TickToSqrtX96 encodes the price at a tick as a sqrt ratio.
func TickToSqrtX96(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("tick %d outside bounds", tick)
	}
	return PriceToSqrtX96(TickToPrice(tick))
}

// powInt raises base to an integer power by squaring, dividing at 40-digit
// precision for negative exponents.
func powInt(base decimal.Decimal, exp int32) decimal.Decimal {
	if exp == 0 {
		return decimal.New(1, 0)
	}

	n := exp
	if n < 0 {
		n = -n
	}

	result := decimal.New(1, 0)
	factor := base
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(factor)
		}
		factor = factor.Mul(factor)
		n >>= 1
		// Unbounded multiplication grows digits quadratically; trim
		// intermediate results well past the precision we return.
		result = result.Round(60)
		factor = factor.Round(60)
	}

	if exp < 0 {
		return decimal.New(1, 0).DivRound(result, 40)
	}
	return result
}
