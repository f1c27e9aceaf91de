package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ndewijer/brokerage-sync/internal/database"
	"github.com/ndewijer/brokerage-sync/internal/model"
)

// DividendRepository provides data access for the dividends table.
// Rows are keyed by (account_id, symbol, payment_date).
type DividendRepository struct {
	base
}

// NewDividendRepository creates a new DividendRepository with the provided database connection.
func NewDividendRepository(db *database.DB) *DividendRepository {
	return &DividendRepository{base: base{db: db}}
}

// WithTx returns a new DividendRepository scoped to the provided transaction.
func (r *DividendRepository) WithTx(tx *sql.Tx) *DividendRepository {
	return &DividendRepository{base: r.withTx(tx)}
}

// The frequency is reset with every upsert; the inference step that follows
// the activities phase fills it in again.
const upsertDividendQuery = `
	INSERT INTO dividends (id, account_id, symbol, amount, currency, payment_date, frequency)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (account_id, symbol, payment_date) DO UPDATE SET
		amount = excluded.amount,
		currency = excluded.currency,
		frequency = excluded.frequency
	RETURNING id
`

// Upsert inserts the dividend or replaces its amount, currency and frequency,
// and sets d.ID to the persisted surrogate id.
func (r *DividendRepository) Upsert(ctx context.Context, d *model.Dividend) error {
	err := r.queryRow(ctx, upsertDividendQuery,
		uuid.New().String(),
		d.AccountID,
		d.Symbol,
		d.Amount,
		d.Currency,
		r.dateArg(d.PaymentDate),
		frequencyArg(d.Frequency),
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert dividend %s/%s/%s: %w", d.AccountID, d.Symbol, d.PaymentDate.Format(dateLayout), err)
	}
	return nil
}

// ListAll returns every dividend ordered by account, symbol and payment date.
func (r *DividendRepository) ListAll(ctx context.Context) ([]model.Dividend, error) {
	rows, err := r.query(ctx, `
		SELECT id, account_id, symbol, amount, currency, payment_date, frequency
		FROM dividends
		ORDER BY account_id, symbol, payment_date
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	defer rows.Close()

	dividends := []model.Dividend{}
	for rows.Next() {
		var d model.Dividend
		var paymentDate timeValue
		var frequency sql.NullString

		if err := rows.Scan(&d.ID, &d.AccountID, &d.Symbol, &d.Amount, &d.Currency, &paymentDate, &frequency); err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
		}
		d.PaymentDate = paymentDate.Time
		if frequency.Valid {
			f := model.DividendFrequency(frequency.String)
			d.Frequency = &f
		}
		dividends = append(dividends, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dividends: %w", err)
	}
	return dividends, nil
}

// SetGroupFrequency sets the frequency of every dividend in the group in one
// statement. A nil frequency clears it. Returns the number of rows updated.
func (r *DividendRepository) SetGroupFrequency(ctx context.Context, group model.DividendGroup, frequency *model.DividendFrequency) (int64, error) {
	result, err := r.exec(ctx, `
		UPDATE dividends SET frequency = ?
		WHERE account_id = ? AND symbol = ?
	`, frequencyArg(frequency), group.AccountID, group.Symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to update frequency for %s/%s: %w", group.AccountID, group.Symbol, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func frequencyArg(f *model.DividendFrequency) any {
	if f == nil {
		return nil
	}
	return string(*f)
}
