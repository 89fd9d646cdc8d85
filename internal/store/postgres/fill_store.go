package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openintents/solverd/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Create inserts one fill attempt record.
func (s *FillStore) Create(ctx context.Context, fill domain.FillRecord) error {
	const query = `
		INSERT INTO fills (
			id, order_id, chain_id, token, amount,
			tx_hash, status, profit_bps, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		fill.ID, fill.OrderID, fill.ChainID, fill.Token,
		fill.Amount.String(), fill.TxHash, string(fill.Status),
		fill.ProfitBps, fill.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fill %s for order %s: %w", fill.ID, fill.OrderID, err)
	}
	return nil
}

var _ domain.FillStore = (*FillStore)(nil)
