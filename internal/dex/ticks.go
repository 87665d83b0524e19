package dex

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Band multipliers for a settlement-derived reference price. The band is
// deliberately wide and asymmetric: post-offering price discovery moves
// further up than down.
var (
	bandLowerFactor = decimal.RequireFromString("0.2")
	bandUpperFactor = decimal.RequireFromString("5.0")
)

// noReferenceHalfWidth is the half-width in ticks used when no reference
// price is available.
const noReferenceHalfWidth int32 = 1000

// TickRange is an aligned half-open tick band [Lower, Upper) for a position.
type TickRange struct {
	Lower   int32
	Upper   int32
	Spacing int32
}

// Validate checks the invariants a mintable range must satisfy against the
// tick the pool reports right now.
func (r TickRange) Validate(currentTick int32) error {
	if r.Spacing <= 0 {
		return fmt.Errorf("tick spacing must be positive, got %d", r.Spacing)
	}
	if r.Lower >= r.Upper {
		return fmt.Errorf("tick range [%d, %d) is empty", r.Lower, r.Upper)
	}
	if r.Lower%r.Spacing != 0 || r.Upper%r.Spacing != 0 {
		return fmt.Errorf("tick range [%d, %d) not aligned to spacing %d", r.Lower, r.Upper, r.Spacing)
	}
	if currentTick < r.Lower || currentTick >= r.Upper {
		return fmt.Errorf("current tick %d outside range [%d, %d)", currentTick, r.Lower, r.Upper)
	}
	return nil
}

// RangeFromReferencePrice derives a band of [price*0.2, price*5.0] converted
// to ticks, each bound widened outward to a spacing multiple, then widened
// further until the pool's current tick falls inside the half-open range.
func RangeFromReferencePrice(referencePrice decimal.Decimal, currentTick int32, spacing int32) (TickRange, error) {
	if spacing <= 0 {
		return TickRange{}, fmt.Errorf("tick spacing must be positive, got %d", spacing)
	}
	if referencePrice.Sign() <= 0 {
		return TickRange{}, fmt.Errorf("reference price must be positive, got %s", referencePrice)
	}

	lowerTick, err := tickAtPrice(referencePrice.Mul(bandLowerFactor))
	if err != nil {
		return TickRange{}, fmt.Errorf("band lower bound: %w", err)
	}
	upperTick, err := tickAtPrice(referencePrice.Mul(bandUpperFactor))
	if err != nil {
		return TickRange{}, fmt.Errorf("band upper bound: %w", err)
	}

	lower := alignDown(lowerTick, spacing)
	upper := alignUp(upperTick, spacing)
	if upper <= lower {
		upper = lower + spacing
	}

	// Widen toward the live tick so the position straddles the pool price.
	// The step stays a spacing multiple to preserve alignment.
	step := widenStep(spacing)
	for currentTick < lower && lower-step >= MinTick {
		lower -= step
	}
	for currentTick >= upper && upper+step <= MaxTick {
		upper += step
	}

	r := TickRange{Lower: lower, Upper: upper, Spacing: spacing}
	if err := r.Validate(currentTick); err != nil {
		return TickRange{}, err
	}
	return r, nil
}

// RangeAroundTick builds a symmetric band of +-1000 ticks around the current
// tick, floor-aligned to the spacing. Used when no reference price exists.
func RangeAroundTick(currentTick int32, spacing int32) (TickRange, error) {
	if spacing <= 0 {
		return TickRange{}, fmt.Errorf("tick spacing must be positive, got %d", spacing)
	}

	lower := alignDown(currentTick-noReferenceHalfWidth, spacing)
	upper := alignDown(currentTick+noReferenceHalfWidth, spacing)
	if upper <= currentTick {
		upper += spacing
	}

	r := TickRange{Lower: lower, Upper: upper, Spacing: spacing}
	if err := r.Validate(currentTick); err != nil {
		return TickRange{}, err
	}
	return r, nil
}

func tickAtPrice(price decimal.Decimal) (int32, error) {
	sqrtRatio, err := PriceToSqrtX96(price)
	if err != nil {
		return 0, err
	}
	return SqrtX96ToTick(sqrtRatio)
}

// alignDown floors toward negative infinity, not toward zero.
func alignDown(tick int32, spacing int32) int32 {
	q := tick / spacing
	if tick%spacing != 0 && tick < 0 {
		q--
	}
	return q * spacing
}

func alignUp(tick int32, spacing int32) int32 {
	aligned := alignDown(tick, spacing)
	if aligned < tick {
		aligned += spacing
	}
	return aligned
}

func widenStep(spacing int32) int32 {
	step := int32(100)
	if spacing > step {
		step = spacing
	}
	return alignUp(step, spacing)
}
