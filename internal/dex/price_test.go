package dex

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPriceToSqrtX96Unit(t *testing.T) {
	got, err := PriceToSqrtX96(decimal.New(1, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(Q96) != 0 {
		t.Fatalf("price 1 should encode to 2^96: %s != %s", got, Q96)
	}
}

func TestPriceToSqrtX96RejectsNonPositive(t *testing.T) {
	if _, err := PriceToSqrtX96(decimal.Zero); err == nil {
		t.Fatalf("expected error for zero price")
	}
	if _, err := PriceToSqrtX96(decimal.New(-1, 0)); err == nil {
		t.Fatalf("expected error for negative price")
	}
}

func TestPriceRoundTrip(t *testing.T) {
	tolerance := decimal.RequireFromString("0.000001")

	for _, input := range []string{"0.00025", "0.2", "1", "5", "1234.56", "98765.4321"} {
		price := decimal.RequireFromString(input)

		encoded, err := PriceToSqrtX96(price)
		if err != nil {
			t.Fatalf("encode %s: %v", input, err)
		}
		decoded, err := SqrtX96ToPrice(encoded)
		if err != nil {
			t.Fatalf("decode %s: %v", input, err)
		}

		relErr := decoded.Sub(price).Abs().DivRound(price, 40)
		if relErr.Cmp(tolerance) > 0 {
			t.Fatalf("round trip of %s drifted: got %s (rel err %s)", input, decoded, relErr)
		}
	}
}

func TestPriceToSqrtX96Monotonic(t *testing.T) {
	prices := []string{"0.0001", "0.5", "1", "1.000001", "2", "1000"}

	var prev *big.Int
	for _, input := range prices {
		encoded, err := PriceToSqrtX96(decimal.RequireFromString(input))
		if err != nil {
			t.Fatalf("encode %s: %v", input, err)
		}
		if prev != nil && encoded.Cmp(prev) <= 0 {
			t.Fatalf("encoding not monotonic at %s: %s <= %s", input, encoded, prev)
		}
		prev = encoded
	}
}

func TestSqrtX96ToTick(t *testing.T) {
	tick, err := SqrtX96ToTick(Q96)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tick != 0 {
		t.Fatalf("price 1 should map to tick 0, got %d", tick)
	}
}

func TestTickSqrtRoundTrip(t *testing.T) {
	for _, tick := range []int32{-100000, -6932, -1, 0, 1, 6931, 100000} {
		encoded, err := TickToSqrtX96(tick)
		if err != nil {
			t.Fatalf("encode tick %d: %v", tick, err)
		}
		got, err := SqrtX96ToTick(encoded)
		if err != nil {
			t.Fatalf("decode tick %d: %v", tick, err)
		}
		if got != tick {
			t.Fatalf("tick round trip mismatch: %d != %d", got, tick)
		}
	}
}

func TestTickToPrice(t *testing.T) {
	if !TickToPrice(0).Equal(decimal.New(1, 0)) {
		t.Fatalf("tick 0 should price at 1, got %s", TickToPrice(0))
	}

	// One tick is a 0.01% price step.
	step := TickToPrice(1).Sub(decimal.RequireFromString("1.0001")).Abs()
	if step.Cmp(decimal.RequireFromString("0.0000000001")) > 0 {
		t.Fatalf("tick 1 should price at 1.0001, got %s", TickToPrice(1))
	}

	inverse := TickToPrice(-50).Mul(TickToPrice(50)).Sub(decimal.New(1, 0)).Abs()
	if inverse.Cmp(decimal.RequireFromString("0.000000000000001")) > 0 {
		t.Fatalf("opposite ticks should invert: product off by %s", inverse)
	}
}
