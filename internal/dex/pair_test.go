package dex

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestOrderTokens(t *testing.T) {
	low := common.HexToAddress("0x0000000000000000000000000000000000000001")
	high := common.HexToAddress("0x00000000000000000000000000000000000000Ff")

	got, err := OrderTokens(high, low)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Token0 != low || got.Token1 != high {
		t.Fatalf("ordering mismatch: %+v", got)
	}
}

func TestOrderTokensSymmetric(t *testing.T) {
	a := common.HexToAddress("0x9aB1f5C3d2E4A6b8C0d2E4F6a8B0c2D4e6F8A0b2")
	b := common.HexToAddress("0x1234567890AbcdEF1234567890aBcDeF12345678")

	forward, err := OrderTokens(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	backward, err := OrderTokens(b, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if forward != backward {
		t.Fatalf("ordering not symmetric: %+v != %+v", forward, backward)
	}
}

func TestOrderTokensNumeric(t *testing.T) {
	// Lowercase hex of a numerically larger address still sorts after an
	// uppercase smaller one; ordering is on the 160-bit value, not the
	// string form.
	small := common.HexToAddress("0x0A00000000000000000000000000000000000000")
	large := common.HexToAddress("0xff00000000000000000000000000000000000000")

	got, err := OrderTokens(large, small)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Token0 != small {
		t.Fatalf("expected numeric ordering, got token0 %s", got.Token0.Hex())
	}
}

func TestOrderTokensRejectsEqual(t *testing.T) {
	a := common.HexToAddress("0x0000000000000000000000000000000000000001")
	if _, err := OrderTokens(a, a); err == nil {
		t.Fatalf("expected error for identical addresses")
	}
}

func TestReserveIsToken1(t *testing.T) {
	token := common.HexToAddress("0x0000000000000000000000000000000000000001")
	reserve := common.HexToAddress("0x0000000000000000000000000000000000000002")

	pair, err := OrderTokens(token, reserve)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pair.ReserveIsToken1(reserve) {
		t.Fatalf("reserve %s should be token1 in %+v", reserve.Hex(), pair)
	}
}
