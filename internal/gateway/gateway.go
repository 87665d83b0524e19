package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrConfirmationTimeout is returned when a submitted transaction was not
// mined within the configured confirmation window. The transaction may still
// land later, so callers must re-read chain state before acting again.
var ErrConfirmationTimeout = errors.New("transaction confirmation timeout")

// RevertError reports a transaction that was mined but reverted.
type RevertError struct {
	TxHash common.Hash
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s reverted", e.TxHash.Hex())
	}
	return fmt.Sprintf("transaction %s reverted: %s", e.TxHash.Hex(), e.Reason)
}

// PoolState is a point-in-time snapshot of a pool's slot0. Initialized is
// false while sqrtPriceX96 is zero.
type PoolState struct {
	Address      common.Address
	SqrtPriceX96 *big.Int
	Tick         int32
	Initialized  bool
}

// Receipt is the confirmation outcome of a submitted transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
}

// MintParams carries everything needed to mint a concentrated position.
type MintParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            uint32
	TickLower      int32
	TickUpper      int32
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

// MintResult is the confirmed outcome of a position mint.
type MintResult struct {
	PositionID  *big.Int
	Liquidity   *big.Int
	Amount0     *big.Int
	Amount1     *big.Int
	TxHash      common.Hash
	BlockNumber uint64
}

// Gateway is the engine's read/write facade over the chain. Reads always
// reflect live state; writes return the submitted transaction hash and are
// confirmed through WaitMined. Implementations sign from a single identity.
type Gateway interface {
	// Sender is the signing address used for submissions and as the
	// position recipient.
	Sender() common.Address

	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)

	// LookupPool resolves the pool for an ordered pair and fee tier.
	// The second return is false when no pool exists yet.
	LookupPool(ctx context.Context, token0, token1 common.Address, fee uint32) (common.Address, bool, error)
	CreatePool(ctx context.Context, token0, token1 common.Address, fee uint32) (common.Hash, error)

	PoolState(ctx context.Context, pool common.Address) (PoolState, error)
	TickSpacing(ctx context.Context, pool common.Address) (int32, error)
	InitializePool(ctx context.Context, pool common.Address, sqrtPriceX96 *big.Int) (common.Hash, error)

	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)

	// MintPosition submits the mint and waits for its confirmation,
	// returning the minted amounts parsed from the receipt.
	MintPosition(ctx context.Context, params MintParams) (MintResult, error)

	// HasPoolPosition reports whether the owner holds a nonzero-liquidity
	// position on the given pair and fee tier; used to reconcile a mint
	// that confirmed before a crash lost the success record.
	HasPoolPosition(ctx context.Context, owner, token0, token1 common.Address, fee uint32) (bool, error)

	WaitMined(ctx context.Context, txHash common.Hash) (Receipt, error)
}
