package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openintents/solverd/internal/domain"
)

// IntentStore implements domain.IntentStore using PostgreSQL. Amounts are
// stored as NUMERIC(78,0) and carried through as decimal strings so uint256
// values survive intact.
type IntentStore struct {
	pool *pgxpool.Pool
}

// NewIntentStore creates an IntentStore backed by the given connection pool.
func NewIntentStore(pool *pgxpool.Pool) *IntentStore {
	return &IntentStore{pool: pool}
}

// Create inserts an observed intent. Re-observing a known order id is a
// no-op via ON CONFLICT DO NOTHING, since intents are immutable.
func (s *IntentStore) Create(ctx context.Context, intent domain.Intent) error {
	const query = `
		INSERT INTO intents (
			order_id, user_address, recipient,
			source_chain, destination_chain,
			input_token, input_amount, output_token, output_amount,
			deadline, block_number, tx_hash, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (order_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		intent.OrderID, intent.User, intent.Recipient,
		intent.SourceChain, intent.DestinationChain,
		intent.InputToken, intent.InputAmount.String(),
		intent.OutputToken, intent.OutputAmount.String(),
		intent.Deadline, intent.BlockNumber, intent.TxHash,
		string(domain.IntentStatusObserved),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert intent %s: %w", intent.OrderID, err)
	}
	return nil
}

// UpdateStatus moves an intent to a new lifecycle status with an optional
// rejection or failure reason.
func (s *IntentStore) UpdateStatus(ctx context.Context, orderID string, status domain.IntentStatus, reason string) error {
	const query = `
		UPDATE intents
		SET status = $2, reason = $3, updated_at = NOW()
		WHERE order_id = $1`

	tag, err := s.pool.Exec(ctx, query, orderID, string(status), reason)
	if err != nil {
		return fmt.Errorf("postgres: update intent %s status: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: intent %s: %w", orderID, domain.ErrNotFound)
	}
	return nil
}

// ListTerminalBefore returns intents whose terminal status was reached
// strictly before the cutoff, oldest first. Used by the archiver.
func (s *IntentStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Intent, error) {
	const query = `
		SELECT order_id, user_address, recipient,
			source_chain, destination_chain,
			input_token, input_amount::TEXT, output_token, output_amount::TEXT,
			deadline, block_number, tx_hash
		FROM intents
		WHERE status IN ('rejected', 'filled', 'failed') AND updated_at < $1
		ORDER BY updated_at`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal intents: %w", err)
	}
	defer rows.Close()

	var intents []domain.Intent
	for rows.Next() {
		var (
			in            domain.Intent
			inAmt, outAmt string
		)
		if err := rows.Scan(
			&in.OrderID, &in.User, &in.Recipient,
			&in.SourceChain, &in.DestinationChain,
			&in.InputToken, &inAmt, &in.OutputToken, &outAmt,
			&in.Deadline, &in.BlockNumber, &in.TxHash,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan intent row: %w", err)
		}
		var ok bool
		if in.InputAmount, ok = new(big.Int).SetString(inAmt, 10); !ok {
			return nil, fmt.Errorf("postgres: intent %s has malformed input amount %q", in.OrderID, inAmt)
		}
		if in.OutputAmount, ok = new(big.Int).SetString(outAmt, 10); !ok {
			return nil, fmt.Errorf("postgres: intent %s has malformed output amount %q", in.OrderID, outAmt)
		}
		intents = append(intents, in)
	}
	return intents, rows.Err()
}

var _ domain.IntentStore = (*IntentStore)(nil)
