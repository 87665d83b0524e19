package dex

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// TokenPair holds the two pool tokens in canonical order. The pool contract
// requires token0 < token1 when both addresses are read as 160-bit unsigned
// integers; string comparison on hex forms is casing-sensitive and wrong.
type TokenPair struct {
	Token0 common.Address
	Token1 common.Address
}

// OrderTokens returns the canonical pair for two token addresses. The result
// is a pure function of the inputs: OrderTokens(a, b) == OrderTokens(b, a).
func OrderTokens(a, b common.Address) (TokenPair, error) {
	if a == b {
		return TokenPair{}, fmt.Errorf("pool tokens must differ, got %s twice", a.Hex())
	}
	// Addresses are 20-byte big-endian values, so byte comparison is
	// numeric comparison.
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return TokenPair{Token0: a, Token1: b}, nil
	}
	return TokenPair{Token0: b, Token1: a}, nil
}

// ReserveIsToken1 reports whether the reserve token sorted into the token1
// slot, which decides which side of the price the settlement quote encodes.
func (p TokenPair) ReserveIsToken1(reserve common.Address) bool {
	return p.Token1 == reserve
}
