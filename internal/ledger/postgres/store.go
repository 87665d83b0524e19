package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquiditybootstrap/internal/model"
)

// Store provides Postgres persistence for distribution records.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetRecord returns the distribution record for an agent.
func (s *Store) GetRecord(ctx context.Context, agentID string) (model.DistributionRecord, bool, error) {
	if agentID == "" {
		return model.DistributionRecord{}, false, fmt.Errorf("agent id is required")
	}

	var record model.DistributionRecord
	row := s.pool.QueryRow(ctx, `
		SELECT agent_id, token_address, liquidity_added,
		       COALESCE(pool_address, ''), COALESCE(tx_hash, ''),
		       COALESCE(token_amount, ''), COALESCE(reserve_amount, '')
		FROM distribution_records
		WHERE agent_id = $1
	`, agentID)
	err := row.Scan(
		&record.AgentID,
		&record.TokenAddress,
		&record.LiquidityAdded,
		&record.PoolAddress,
		&record.TxHash,
		&record.TokenAmount,
		&record.ReserveAmount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DistributionRecord{}, false, nil
		}
		return model.DistributionRecord{}, false, err
	}

	return record, true, nil
}

// SetLiquidityAdded upserts the completed record. Duplicate calls for the
// same agent are tolerated as overwrites of identical data.
func (s *Store) SetLiquidityAdded(ctx context.Context, record model.DistributionRecord) error {
	if record.AgentID == "" {
		return fmt.Errorf("agent id is required")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO distribution_records (
			agent_id, token_address, liquidity_added, pool_address, tx_hash,
			token_amount, reserve_amount, created_at, updated_at
		) VALUES ($1, $2, true, $3, $4, $5, $6, now(), now())
		ON CONFLICT (agent_id) DO UPDATE SET
			liquidity_added = true,
			pool_address = EXCLUDED.pool_address,
			tx_hash = EXCLUDED.tx_hash,
			token_amount = EXCLUDED.token_amount,
			reserve_amount = EXCLUDED.reserve_amount,
			updated_at = now()
	`,
		record.AgentID,
		record.TokenAddress,
		record.PoolAddress,
		record.TxHash,
		record.TokenAmount,
		record.ReserveAmount,
	)
	return err
}
