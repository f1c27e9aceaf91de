package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndewijer/brokerage-sync/internal/database"
	"github.com/ndewijer/brokerage-sync/internal/model"
)

// ActivityRepository provides data access for the activities table.
type ActivityRepository struct {
	base
}

// NewActivityRepository creates a new ActivityRepository with the provided database connection.
func NewActivityRepository(db *database.DB) *ActivityRepository {
	return &ActivityRepository{base: base{db: db}}
}

// WithTx returns a new ActivityRepository scoped to the provided transaction.
func (r *ActivityRepository) WithTx(tx *sql.Tx) *ActivityRepository {
	return &ActivityRepository{base: r.withTx(tx)}
}

const upsertActivityQuery = `
	INSERT INTO activities (id, account_id, activity_type, symbol, description, quantity,
		price, amount, currency, occurred_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		account_id = excluded.account_id,
		activity_type = excluded.activity_type,
		symbol = excluded.symbol,
		description = excluded.description,
		quantity = excluded.quantity,
		price = excluded.price,
		amount = excluded.amount,
		currency = excluded.currency,
		occurred_at = excluded.occurred_at
`

// Upsert inserts the activity or replaces its mutable fields.
func (r *ActivityRepository) Upsert(ctx context.Context, a model.Activity) error {
	_, err := r.exec(ctx, upsertActivityQuery,
		a.ID,
		a.AccountID,
		string(a.Type),
		nullString(a.Symbol),
		nullString(a.Description),
		a.Quantity,
		a.Price,
		a.Amount,
		a.Currency,
		r.timeArg(a.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert activity %s: %w", a.ID, err)
	}
	return nil
}

// ListByAccount returns the activities of one account, newest first.
func (r *ActivityRepository) ListByAccount(ctx context.Context, accountID string) ([]model.Activity, error) {
	rows, err := r.query(ctx, `
		SELECT id, account_id, activity_type, symbol, description, quantity, price, amount, currency, occurred_at
		FROM activities
		WHERE account_id = ?
		ORDER BY occurred_at DESC, id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	activities := []model.Activity{}
	for rows.Next() {
		var a model.Activity
		var activityType string
		var symbol, description sql.NullString
		var occurredAt timeValue

		err := rows.Scan(
			&a.ID,
			&a.AccountID,
			&activityType,
			&symbol,
			&description,
			&a.Quantity,
			&a.Price,
			&a.Amount,
			&a.Currency,
			&occurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Type = model.ActivityType(activityType)
		a.Symbol = stringPtr(symbol)
		a.Description = stringPtr(description)
		a.OccurredAt = occurredAt.Time
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return activities, nil
}
