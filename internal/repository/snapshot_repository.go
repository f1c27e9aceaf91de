package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ndewijer/brokerage-sync/internal/database"
	"github.com/ndewijer/brokerage-sync/internal/model"
)

// SnapshotRepository provides data access for the account_snapshots table.
type SnapshotRepository struct {
	base
}

// NewSnapshotRepository creates a new SnapshotRepository with the provided database connection.
func NewSnapshotRepository(db *database.DB) *SnapshotRepository {
	return &SnapshotRepository{base: base{db: db}}
}

// WithTx returns a new SnapshotRepository scoped to the provided transaction.
func (r *SnapshotRepository) WithTx(tx *sql.Tx) *SnapshotRepository {
	return &SnapshotRepository{base: r.withTx(tx)}
}

const upsertSnapshotQuery = `
	INSERT INTO account_snapshots (id, account_id, date, net_liquidation, deposits, withdrawals, earnings)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (account_id, date) DO UPDATE SET
		net_liquidation = excluded.net_liquidation,
		deposits = excluded.deposits,
		withdrawals = excluded.withdrawals,
		earnings = excluded.earnings
	RETURNING id
`

// Upsert inserts the snapshot or replaces its values for that day, and sets
// s.ID to the persisted surrogate id.
func (r *SnapshotRepository) Upsert(ctx context.Context, s *model.AccountSnapshot) error {
	err := r.queryRow(ctx, upsertSnapshotQuery,
		uuid.New().String(),
		s.AccountID,
		r.dateArg(s.Date),
		s.NetLiquidation,
		s.Deposits,
		s.Withdrawals,
		s.Earnings,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot %s/%s: %w", s.AccountID, s.Date.Format(dateLayout), err)
	}
	return nil
}

// ListByAccount returns the snapshots of one account in date order.
func (r *SnapshotRepository) ListByAccount(ctx context.Context, accountID string) ([]model.AccountSnapshot, error) {
	rows, err := r.query(ctx, `
		SELECT id, account_id, date, net_liquidation, deposits, withdrawals, earnings
		FROM account_snapshots
		WHERE account_id = ?
		ORDER BY date
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []model.AccountSnapshot{}
	for rows.Next() {
		var s model.AccountSnapshot
		var date timeValue
		if err := rows.Scan(&s.ID, &s.AccountID, &date, &s.NetLiquidation, &s.Deposits, &s.Withdrawals, &s.Earnings); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.Date = date.Time
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snapshots, nil
}
