package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

// StaticSettlement serves settlement facts handed over by the settlement
// workflow, for deployments where the engine runs as a step of that
// workflow rather than reading the IAO contract itself.
type StaticSettlement struct {
	Finalized bool
	Deposited decimal.Decimal
}

func (s StaticSettlement) IsFinalized(_ context.Context, _ string) (bool, error) {
	return s.Finalized, nil
}

func (s StaticSettlement) TotalReserveDeposited(_ context.Context, _ string) (decimal.Decimal, error) {
	return s.Deposited, nil
}

// StaticFeed serves a fixed reserve USD price.
type StaticFeed struct {
	Price decimal.Decimal
}

func (f StaticFeed) CurrentPrice(_ context.Context) (decimal.Decimal, error) {
	return f.Price, nil
}
