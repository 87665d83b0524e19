package bootstrap

import (
	"fmt"
	"math/big"
)

// FailureKind classifies bootstrap failures for the caller. Kinds marked
// retryable are safe to re-run end to end because every step re-reads live
// state.
type FailureKind string

const (
	KindSettlementNotFinal  FailureKind = "settlement_not_final"
	KindInsufficientBalance FailureKind = "insufficient_balance"
	KindInvalidTickRange    FailureKind = "invalid_tick_range"
	KindAllowanceRejected   FailureKind = "allowance_rejected"
	KindConfirmationTimeout FailureKind = "confirmation_timeout"
	KindChainRevert         FailureKind = "chain_revert"
	KindUnknownFailure      FailureKind = "unknown"
)

// Failure is the structured error a bootstrap attempt returns. Submitted
// distinguishes "nothing happened" (pre-flight failure, no transaction left
// the engine) from "partial progress was made on-chain", so operators know
// whether a plain re-run is safe.
type Failure struct {
	Kind      FailureKind
	Message   string
	Retryable bool
	Submitted bool

	// Need and Have are set for KindInsufficientBalance.
	Need *big.Int
	Have *big.Int

	Err error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("bootstrap %s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("bootstrap %s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func insufficientBalance(asset string, need, have *big.Int) *Failure {
	return &Failure{
		Kind:    KindInsufficientBalance,
		Message: fmt.Sprintf("%s balance %s below requested %s", asset, have, need),
		Need:    new(big.Int).Set(need),
		Have:    new(big.Int).Set(have),
	}
}
