package domain

import "time"

// DailyTradeCandle is one day of trading for an instrument.
// Corresponds to daily_trade_candle table. Append-only, keyed by (key, record_date).
type DailyTradeCandle struct {
	Key           string
	RecordDate    time.Time
	PreviousPrice int64
	OpenPrice     int64
	ClosePrice    int64
	LastPrice     int64
	MaxPrice      int64
	MinPrice      int64
	TradeNum      int64
	TradeVolume   int64
	TradeValue    int64
}

// ClientTypeSide holds the aggregates of one side (buy or sell) for one client type.
type ClientTypeSide struct {
	Num    int64
	Volume int64
	Value  int64
}

// DailyClientType is one day of natural/legal client breakdown for an instrument.
// Corresponds to daily_client_type table. Append-only, keyed by (key, record_date).
type DailyClientType struct {
	Key         string
	RecordDate  time.Time
	NaturalBuy  ClientTypeSide
	NaturalSell ClientTypeSide
	LegalBuy    ClientTypeSide
	LegalSell   ClientTypeSide
}

// TradeVolume returns the total volume bought by both client types.
func (c *DailyClientType) TradeVolume() int64 {
	return c.NaturalBuy.Volume + c.LegalBuy.Volume
}

// DailyIndexValue is one day of an index.
// Corresponds to daily_index_value table. Append-only, keyed by (key, record_date).
type DailyIndexValue struct {
	Key        string
	RecordDate time.Time
	CloseValue float64
	MaxValue   float64
	MinValue   float64
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
