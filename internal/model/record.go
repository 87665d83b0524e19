package model

// DistributionRecord tracks liquidity distribution state for an agent token.
// It is created at token issuance time with LiquidityAdded=false and flipped
// to true exactly once when the liquidity position is minted.
type DistributionRecord struct {
	AgentID        string `json:"agent_id"`
	TokenAddress   string `json:"token_address"`
	LiquidityAdded bool   `json:"liquidity_added"`
	PoolAddress    string `json:"pool_address,omitempty"`
	TxHash         string `json:"tx_hash,omitempty"`
	TokenAmount    string `json:"token_amount,omitempty"`
	ReserveAmount  string `json:"reserve_amount,omitempty"`
}
