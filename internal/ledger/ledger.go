package ledger

import (
	"context"

	"liquiditybootstrap/internal/model"
)

// Ledger is the persistence contract for distribution records. GetRecord is
// read at the start of every bootstrap attempt; SetLiquidityAdded flips the
// flag on mint success. The check and the flip are separate calls, so
// at-most-once distribution is a soft guarantee and callers must serialize
// attempts per agent.
type Ledger interface {
	// GetRecord returns the record for an agent. The second return is
	// false when no record exists.
	GetRecord(ctx context.Context, agentID string) (model.DistributionRecord, bool, error)

	// SetLiquidityAdded marks the agent's distribution complete and
	// stores the pool address, transaction hash, and minted amounts.
	SetLiquidityAdded(ctx context.Context, record model.DistributionRecord) error
}
