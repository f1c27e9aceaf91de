package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/brokerage-sync/internal/brokerage"
	"github.com/ndewijer/brokerage-sync/internal/model"
	"github.com/ndewijer/brokerage-sync/internal/normalize"
	"github.com/ndewijer/brokerage-sync/internal/repository"
	"github.com/ndewijer/brokerage-sync/internal/yahoo"
)

// EnrichResult summarizes an enrichment pass.
type EnrichResult struct {
	Securities int `json:"securities"`
	Described  int `json:"described"`
	Quoted     int `json:"quoted"`
	Failed     int `json:"failed"`
}

// EnrichmentService fills the securities table from the instruments held in
// positions. It runs separately from the sync phases; failures are isolated
// per security.
type EnrichmentService struct {
	store           *repository.Store
	descriptions    brokerage.SecuritySource
	quotes          yahoo.Client
	defaultCurrency string
	log             zerolog.Logger
	now             func() time.Time
}

// NewEnrichmentService creates an EnrichmentService. descriptions and quotes
// are optional; without either, securities are stored with what positions
// know about them.
func NewEnrichmentService(store *repository.Store, descriptions brokerage.SecuritySource, quotes yahoo.Client, defaultCurrency string, log zerolog.Logger) *EnrichmentService {
	if defaultCurrency == "" {
		defaultCurrency = normalize.DefaultCurrency
	}
	return &EnrichmentService{
		store:           store,
		descriptions:    descriptions,
		quotes:          quotes,
		defaultCurrency: defaultCurrency,
		log:             log.With().Str("component", "enrichment").Logger(),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// EnrichSecurities upserts one security per distinct security id in positions.
func (s *EnrichmentService) EnrichSecurities(ctx context.Context) (EnrichResult, error) {
	refs, err := s.store.Positions.DistinctSecurities(ctx)
	if err != nil {
		return EnrichResult{}, err
	}

	result := EnrichResult{Securities: len(refs)}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		sec, described, quoted := s.enrich(ctx, ref)
		if err := s.store.Securities.Upsert(ctx, sec); err != nil {
			result.Failed++
			s.log.Warn().Err(err).Str("security_id", ref.ID).Msg("failed to store security")
			continue
		}
		if described {
			result.Described++
		}
		if quoted {
			result.Quoted++
		}
	}

	s.log.Info().
		Int("securities", result.Securities).
		Int("described", result.Described).
		Int("quoted", result.Quoted).
		Int("failed", result.Failed).
		Msg("securities enriched")
	return result, nil
}

func (s *EnrichmentService) enrich(ctx context.Context, ref model.SecurityRef) (model.Security, bool, bool) {
	now := s.now()
	sec := model.Security{
		ID:        ref.ID,
		Symbol:    ref.Symbol,
		Name:      ref.Name,
		Currency:  ref.Currency,
		UpdatedAt: now,
	}
	log := s.log.With().Str("security_id", ref.ID).Str("symbol", ref.Symbol).Logger()

	described := false
	if s.descriptions != nil {
		if d, err := s.describe(ctx, ref.ID); err != nil {
			log.Warn().Err(err).Msg("security description unavailable")
		} else {
			d.ID = ref.ID
			if d.Symbol == model.UnknownSymbol {
				d.Symbol = ref.Symbol
			}
			sec = d
			described = true
		}
	}

	quoted := false
	if s.quotes != nil && sec.Symbol != model.UnknownSymbol {
		if err := s.quote(ctx, &sec); err != nil {
			log.Warn().Err(err).Msg("quote unavailable")
		} else {
			quoted = true
		}
	}

	return sec, described, quoted
}

func (s *EnrichmentService) describe(ctx context.Context, id string) (model.Security, error) {
	raw, err := s.descriptions.GetSecurity(ctx, id)
	if err != nil {
		return model.Security{}, err
	}
	return normalize.Security(raw, normalize.Defaults{Currency: s.defaultCurrency, Now: s.now})
}

func (s *EnrichmentService) quote(ctx context.Context, sec *model.Security) error {
	resp, err := s.quotes.QueryFiveDay(ctx, QuoteSymbol(sec.Symbol, sec.Exchange))
	if err != nil {
		return err
	}
	chart, err := s.quotes.ParseChart(resp)
	if err != nil {
		return err
	}
	latest, ok := chart.LatestClose()
	if !ok {
		return fmt.Errorf("no close price for %s", sec.Symbol)
	}

	sec.CurrentPrice = decimal.NewNullDecimal(decimal.NewFromFloat(latest.PriceClose))
	at := latest.Date
	sec.PriceUpdatedAt = &at
	if sec.Exchange == nil && chart.ExchangeName != "" {
		exchange := chart.ExchangeName
		sec.Exchange = &exchange
	}
	if sec.Type == nil && chart.InstrumentType != "" {
		instrumentType := strings.ToLower(chart.InstrumentType)
		sec.Type = &instrumentType
	}
	return nil
}

// QuoteSymbol returns the chart symbol for a listing: Canadian exchanges
// take a suffix, everything else is queried as-is.
func QuoteSymbol(symbol string, exchange *string) string {
	if exchange == nil {
		return symbol
	}
	switch strings.ToUpper(*exchange) {
	case "TSX", "TOR":
		return symbol + ".TO"
	case "TSXV", "TSX-V", "VAN":
		return symbol + ".V"
	case "NEO", "CBOE CA", "NEO-L":
		return symbol + ".NE"
	case "CSE", "CNQ":
		return symbol + ".CN"
	default:
		return symbol
	}
}
