package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ndewijer/brokerage-sync/internal/database"
	"github.com/ndewijer/brokerage-sync/internal/model"
)

// PositionRepository provides data access for the positions table.
// Rows are keyed by (account_id, symbol); id is a surrogate set on insert.
type PositionRepository struct {
	base
}

// NewPositionRepository creates a new PositionRepository with the provided database connection.
func NewPositionRepository(db *database.DB) *PositionRepository {
	return &PositionRepository{base: base{db: db}}
}

// WithTx returns a new PositionRepository scoped to the provided transaction.
func (r *PositionRepository) WithTx(tx *sql.Tx) *PositionRepository {
	return &PositionRepository{base: r.withTx(tx)}
}

const upsertPositionQuery = `
	INSERT INTO positions (id, account_id, security_id, symbol, name, quantity, book_value,
		market_value, gain_loss, gain_loss_pct, currency, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (account_id, symbol) DO UPDATE SET
		security_id = excluded.security_id,
		name = excluded.name,
		quantity = excluded.quantity,
		book_value = excluded.book_value,
		market_value = excluded.market_value,
		gain_loss = excluded.gain_loss,
		gain_loss_pct = excluded.gain_loss_pct,
		currency = excluded.currency,
		updated_at = excluded.updated_at
	RETURNING id
`

// Upsert inserts the position or replaces its mutable fields, and sets p.ID
// to the persisted surrogate id.
func (r *PositionRepository) Upsert(ctx context.Context, p *model.Position) error {
	err := r.queryRow(ctx, upsertPositionQuery,
		uuid.New().String(),
		p.AccountID,
		nullString(p.SecurityID),
		p.Symbol,
		p.Name,
		p.Quantity,
		p.BookValue,
		p.MarketValue,
		p.GainLoss,
		p.GainLossPct,
		p.Currency,
		r.timeArg(p.UpdatedAt),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s/%s: %w", p.AccountID, p.Symbol, err)
	}
	return nil
}

// ListByAccount returns the positions of one account ordered by symbol.
func (r *PositionRepository) ListByAccount(ctx context.Context, accountID string) ([]model.Position, error) {
	rows, err := r.query(ctx, `
		SELECT id, account_id, security_id, symbol, name, quantity, book_value,
			market_value, gain_loss, gain_loss_pct, currency, updated_at
		FROM positions
		WHERE account_id = ?
		ORDER BY symbol
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := []model.Position{}
	for rows.Next() {
		var p model.Position
		var securityID sql.NullString
		var updatedAt timeValue

		err := rows.Scan(
			&p.ID,
			&p.AccountID,
			&securityID,
			&p.Symbol,
			&p.Name,
			&p.Quantity,
			&p.BookValue,
			&p.MarketValue,
			&p.GainLoss,
			&p.GainLossPct,
			&p.Currency,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.SecurityID = stringPtr(securityID)
		p.UpdatedAt = updatedAt.Time
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

// DistinctSecurities returns one reference per security id held in any
// account. Positions without a security id are not included.
func (r *PositionRepository) DistinctSecurities(ctx context.Context) ([]model.SecurityRef, error) {
	rows, err := r.query(ctx, `
		SELECT security_id, MIN(symbol), MIN(name), MIN(currency)
		FROM positions
		WHERE security_id IS NOT NULL AND security_id <> ''
		GROUP BY security_id
		ORDER BY security_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities from positions: %w", err)
	}
	defer rows.Close()

	refs := []model.SecurityRef{}
	for rows.Next() {
		var ref model.SecurityRef
		if err := rows.Scan(&ref.ID, &ref.Symbol, &ref.Name, &ref.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan security reference: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security references: %w", err)
	}
	return refs, nil
}
