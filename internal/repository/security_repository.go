package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
	"github.com/ndewijer/brokerage-sync/internal/database"
	"github.com/ndewijer/brokerage-sync/internal/model"
)

// SecurityRepository provides data access for the securities table.
type SecurityRepository struct {
	base
}

// NewSecurityRepository creates a new SecurityRepository with the provided database connection.
func NewSecurityRepository(db *database.DB) *SecurityRepository {
	return &SecurityRepository{base: base{db: db}}
}

// WithTx returns a new SecurityRepository scoped to the provided transaction.
func (r *SecurityRepository) WithTx(tx *sql.Tx) *SecurityRepository {
	return &SecurityRepository{base: r.withTx(tx)}
}

const upsertSecurityQuery = `
	INSERT INTO securities (id, symbol, name, security_type, exchange, currency, dividend_yield,
		mer, pe_ratio, market_cap, current_price, price_updated_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		symbol = excluded.symbol,
		name = excluded.name,
		security_type = COALESCE(excluded.security_type, securities.security_type),
		exchange = COALESCE(excluded.exchange, securities.exchange),
		currency = excluded.currency,
		dividend_yield = COALESCE(excluded.dividend_yield, securities.dividend_yield),
		mer = COALESCE(excluded.mer, securities.mer),
		pe_ratio = COALESCE(excluded.pe_ratio, securities.pe_ratio),
		market_cap = COALESCE(excluded.market_cap, securities.market_cap),
		current_price = COALESCE(excluded.current_price, securities.current_price),
		price_updated_at = COALESCE(excluded.price_updated_at, securities.price_updated_at),
		updated_at = excluded.updated_at
`

// Upsert inserts the security or refreshes it. Null descriptive fields keep
// the previously stored value, so a partial source does not erase data.
func (r *SecurityRepository) Upsert(ctx context.Context, s model.Security) error {
	_, err := r.exec(ctx, upsertSecurityQuery,
		s.ID,
		s.Symbol,
		s.Name,
		nullString(s.Type),
		nullString(s.Exchange),
		s.Currency,
		s.DividendYield,
		s.MER,
		s.PERatio,
		s.MarketCap,
		s.CurrentPrice,
		r.nullTimeArg(s.PriceUpdatedAt),
		r.timeArg(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert security %s: %w", s.ID, err)
	}
	return nil
}

// Get returns one security by id.
func (r *SecurityRepository) Get(ctx context.Context, id string) (model.Security, error) {
	var s model.Security
	var securityType, exchange sql.NullString
	var priceUpdatedAt, updatedAt timeValue

	err := r.queryRow(ctx, `
		SELECT id, symbol, name, security_type, exchange, currency, dividend_yield, mer,
			pe_ratio, market_cap, current_price, price_updated_at, updated_at
		FROM securities
		WHERE id = ?
	`, id).Scan(
		&s.ID,
		&s.Symbol,
		&s.Name,
		&securityType,
		&exchange,
		&s.Currency,
		&s.DividendYield,
		&s.MER,
		&s.PERatio,
		&s.MarketCap,
		&s.CurrentPrice,
		&priceUpdatedAt,
		&updatedAt,
	)
	if isNoRows(err) {
		return model.Security{}, apperrors.ErrSecurityNotFound
	}
	if err != nil {
		return model.Security{}, fmt.Errorf("failed to get security: %w", err)
	}

	s.Type = stringPtr(securityType)
	s.Exchange = stringPtr(exchange)
	s.PriceUpdatedAt = priceUpdatedAt.ptr()
	s.UpdatedAt = updatedAt.Time
	return s, nil
}
