package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
	"github.com/ndewijer/brokerage-sync/internal/database"
	"github.com/ndewijer/brokerage-sync/internal/model"
)

// AccountRepository provides data access for the accounts table.
type AccountRepository struct {
	base
}

// NewAccountRepository creates a new AccountRepository with the provided database connection.
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{base: base{db: db}}
}

// WithTx returns a new AccountRepository scoped to the provided transaction.
func (r *AccountRepository) WithTx(tx *sql.Tx) *AccountRepository {
	return &AccountRepository{base: r.withTx(tx)}
}

const upsertAccountQuery = `
	INSERT INTO accounts (id, account_type, nickname, currency, status, net_liquidation,
		buying_power, total_deposits, total_withdrawals, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		account_type = excluded.account_type,
		nickname = excluded.nickname,
		currency = excluded.currency,
		status = excluded.status,
		net_liquidation = excluded.net_liquidation,
		buying_power = excluded.buying_power,
		total_deposits = excluded.total_deposits,
		total_withdrawals = excluded.total_withdrawals,
		updated_at = excluded.updated_at
`

// Upsert inserts the account or replaces its mutable fields.
func (r *AccountRepository) Upsert(ctx context.Context, a model.Account) error {
	_, err := r.exec(ctx, upsertAccountQuery,
		a.ID,
		string(a.Type),
		nullString(a.Nickname),
		a.Currency,
		a.Status,
		a.NetLiquidation,
		a.BuyingPower,
		a.TotalDeposits,
		a.TotalWithdrawals,
		r.timeArg(a.UpdatedAt),
		r.timeArg(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", a.ID, err)
	}
	return nil
}

const selectAccountColumns = `
	SELECT id, account_type, nickname, currency, status, net_liquidation,
		buying_power, total_deposits, total_withdrawals, updated_at
	FROM accounts
`

// List returns every account ordered by id.
func (r *AccountRepository) List(ctx context.Context) ([]model.Account, error) {
	rows, err := r.query(ctx, selectAccountColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// Get returns one account by id.
func (r *AccountRepository) Get(ctx context.Context, id string) (model.Account, error) {
	a, err := scanAccount(r.queryRow(ctx, selectAccountColumns+` WHERE id = ?`, id))
	if isNoRows(err) {
		return model.Account{}, apperrors.ErrAccountNotFound
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var a model.Account
	var accountType string
	var nickname sql.NullString
	var updatedAt timeValue

	err := row.Scan(
		&a.ID,
		&accountType,
		&nickname,
		&a.Currency,
		&a.Status,
		&a.NetLiquidation,
		&a.BuyingPower,
		&a.TotalDeposits,
		&a.TotalWithdrawals,
		&updatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return model.Account{}, err
		}
		return model.Account{}, fmt.Errorf("failed to scan account: %w", err)
	}

	a.Type = model.AccountType(accountType)
	a.Nickname = stringPtr(nickname)
	a.UpdatedAt = updatedAt.Time
	return a, nil
}
