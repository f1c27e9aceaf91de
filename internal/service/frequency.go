package service

import (
	"sort"
	"time"

	"github.com/ndewijer/brokerage-sync/internal/model"
)

// Average gap thresholds in days.
const (
	monthlyMaxGap    = 45
	quarterlyMaxGap  = 120
	semiAnnualMaxGap = 210
)

// ClassifyGap maps an average gap between payments onto a frequency.
func ClassifyGap(avgDays float64) model.DividendFrequency {
	switch {
	case avgDays <= monthlyMaxGap:
		return model.FrequencyMonthly
	case avgDays <= quarterlyMaxGap:
		return model.FrequencyQuarterly
	case avgDays <= semiAnnualMaxGap:
		return model.FrequencySemiAnnual
	default:
		return model.FrequencyAnnual
	}
}

// InferFrequencies groups dividends by account and symbol and classifies each
// group by the average gap between consecutive payment dates. Groups with
// fewer than two payments map to nil.
func InferFrequencies(dividends []model.Dividend) map[model.DividendGroup]*model.DividendFrequency {
	dates := make(map[model.DividendGroup][]time.Time)
	for _, d := range dividends {
		g := d.Group()
		dates[g] = append(dates[g], d.PaymentDate)
	}

	result := make(map[model.DividendGroup]*model.DividendFrequency, len(dates))
	for g, ds := range dates {
		if len(ds) < 2 {
			result[g] = nil
			continue
		}

		sort.Slice(ds, func(i, j int) bool { return ds[i].Before(ds[j]) })

		var total float64
		for i := 1; i < len(ds); i++ {
			total += ds[i].Sub(ds[i-1]).Hours() / 24
		}
		f := ClassifyGap(total / float64(len(ds)-1))
		result[g] = &f
	}
	return result
}

// sortedGroups returns the keys of m in a stable order.
func sortedGroups(m map[model.DividendGroup]*model.DividendFrequency) []model.DividendGroup {
	groups := make([]model.DividendGroup, 0, len(m))
	for g := range m {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].AccountID != groups[j].AccountID {
			return groups[i].AccountID < groups[j].AccountID
		}
		return groups[i].Symbol < groups[j].Symbol
	})
	return groups
}
