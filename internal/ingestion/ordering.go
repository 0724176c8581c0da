package ingestion

import (
	"errors"
	"sort"
	"time"

	"tse-market-sync/internal/domain"
)

// ErrInvalidOrdering is returned when a daily series is not strictly increasing by date.
var ErrInvalidOrdering = errors.New("series is not strictly increasing by record date")

// sortCandles orders candles by record_date ASC.
func sortCandles(candles []*domain.DailyTradeCandle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].RecordDate.Before(candles[j].RecordDate)
	})
}

// sortClientTypes orders client type rows by record_date ASC.
func sortClientTypes(rows []*domain.DailyClientType) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].RecordDate.Before(rows[j].RecordDate)
	})
}

// sortIndexValues orders index values by record_date ASC.
func sortIndexValues(values []*domain.DailyIndexValue) {
	sort.SliceStable(values, func(i, j int) bool {
		return values[i].RecordDate.Before(values[j].RecordDate)
	})
}

// ValidateOrdering checks that dates are strictly increasing.
// Returns ErrInvalidOrdering if not.
func ValidateOrdering(dates []time.Time) error {
	for i := 1; i < len(dates); i++ {
		if !dates[i-1].Before(dates[i]) {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// NewCandles returns the candles dated strictly after latest that carry
// trading volume, ordered by date. A zero latest keeps every traded day.
func NewCandles(candles []*domain.DailyTradeCandle, latest time.Time) []*domain.DailyTradeCandle {
	var kept []*domain.DailyTradeCandle
	for _, c := range candles {
		if c.TradeVolume > 0 && c.RecordDate.After(latest) {
			kept = append(kept, c)
		}
	}
	sortCandles(kept)
	return dedupe(kept, func(c *domain.DailyTradeCandle) time.Time { return c.RecordDate })
}

// NewClientTypes returns the rows dated strictly after latest with buy volume, ordered by date.
func NewClientTypes(rows []*domain.DailyClientType, latest time.Time) []*domain.DailyClientType {
	var kept []*domain.DailyClientType
	for _, r := range rows {
		if r.TradeVolume() > 0 && r.RecordDate.After(latest) {
			kept = append(kept, r)
		}
	}
	sortClientTypes(kept)
	return dedupe(kept, func(r *domain.DailyClientType) time.Time { return r.RecordDate })
}

// NewIndexValues returns the values dated strictly after latest, ordered by date.
func NewIndexValues(values []*domain.DailyIndexValue, latest time.Time) []*domain.DailyIndexValue {
	var kept []*domain.DailyIndexValue
	for _, v := range values {
		if v.RecordDate.After(latest) {
			kept = append(kept, v)
		}
	}
	sortIndexValues(kept)
	return dedupe(kept, func(v *domain.DailyIndexValue) time.Time { return v.RecordDate })
}

// dedupe drops rows that repeat the calendar day of the previous row.
// Input must be sorted by date.
func dedupe[T any](rows []*T, dateOf func(*T) time.Time) []*T {
	if len(rows) < 2 {
		return rows
	}
	out := rows[:1]
	for _, r := range rows[1:] {
		if !domain.SameDay(dateOf(out[len(out)-1]), dateOf(r)) {
			out = append(out, r)
		}
	}
	return out
}
