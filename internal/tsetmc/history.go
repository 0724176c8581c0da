package tsetmc

import (
	"context"
	"fmt"
	"math"
	"time"

	"tse-market-sync/internal/domain"
)

const (
	closingPricePath = "/api/ClosingPrice/GetClosingPriceDailyList/"
	clientTypePath   = "/api/ClientType/GetClientTypeHistory/"
	indexHistoryPath = "/api/Index/GetIndexB2History/"
)

// parseDEven converts a yyyymmdd integer date to midnight UTC.
func parseDEven(v int) (time.Time, error) {
	y, m, d := v/10000, v/100%100, v%100
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if y < 1900 || m < 1 || m > 12 || d < 1 || t.Day() != d {
		return time.Time{}, fmt.Errorf("invalid date %d", v)
	}
	return t, nil
}

type closingPriceResponse struct {
	ClosingPriceDaily []closingPrice `json:"closingPriceDaily"`
}

type closingPrice struct {
	DEven          int     `json:"dEven"`
	PriceYesterday float64 `json:"priceYesterday"`
	PriceFirst     float64 `json:"priceFirst"`
	PClosing       float64 `json:"pClosing"`
	PDrCotVal      float64 `json:"pDrCotVal"`
	PriceMax       float64 `json:"priceMax"`
	PriceMin       float64 `json:"priceMin"`
	ZTotTran       float64 `json:"zTotTran"`
	QTotTran5J     float64 `json:"qTotTran5J"`
	QTotCap        float64 `json:"qTotCap"`
}

// FetchTradeHistory returns the daily candles of the instrument behind shortCode.
func (c *Client) FetchTradeHistory(ctx context.Context, key, shortCode string) ([]*domain.DailyTradeCandle, error) {
	const op = "trade_history"

	var resp closingPriceResponse
	if err := c.getJSON(ctx, op, closingPricePath+escape(shortCode)+"/0", &resp); err != nil {
		return nil, err
	}

	result := make([]*domain.DailyTradeCandle, 0, len(resp.ClosingPriceDaily))
	for _, p := range resp.ClosingPriceDaily {
		date, err := parseDEven(p.DEven)
		if err != nil {
			return nil, &ScrapeError{Operation: op, Err: err}
		}
		result = append(result, &domain.DailyTradeCandle{
			Key:           key,
			RecordDate:    date,
			PreviousPrice: round(p.PriceYesterday),
			OpenPrice:     round(p.PriceFirst),
			ClosePrice:    round(p.PClosing),
			LastPrice:     round(p.PDrCotVal),
			MaxPrice:      round(p.PriceMax),
			MinPrice:      round(p.PriceMin),
			TradeNum:      round(p.ZTotTran),
			TradeVolume:   round(p.QTotTran5J),
			TradeValue:    round(p.QTotCap),
		})
	}
	return result, nil
}

type clientTypeResponse struct {
	ClientType []clientType `json:"clientType"`
}

// I fields are natural persons, N fields are legal entities.
type clientType struct {
	RecDate     int     `json:"recDate"`
	BuyICount   float64 `json:"buy_I_Count"`
	BuyIVolume  float64 `json:"buy_I_Volume"`
	BuyIValue   float64 `json:"buy_I_Value"`
	BuyNCount   float64 `json:"buy_N_Count"`
	BuyNVolume  float64 `json:"buy_N_Volume"`
	BuyNValue   float64 `json:"buy_N_Value"`
	SellICount  float64 `json:"sell_I_Count"`
	SellIVolume float64 `json:"sell_I_Volume"`
	SellIValue  float64 `json:"sell_I_Value"`
	SellNCount  float64 `json:"sell_N_Count"`
	SellNVolume float64 `json:"sell_N_Volume"`
	SellNValue  float64 `json:"sell_N_Value"`
}

// FetchClientTypeHistory returns the daily natural/legal breakdown of the instrument behind shortCode.
func (c *Client) FetchClientTypeHistory(ctx context.Context, key, shortCode string) ([]*domain.DailyClientType, error) {
	const op = "client_type_history"

	var resp clientTypeResponse
	if err := c.getJSON(ctx, op, clientTypePath+escape(shortCode), &resp); err != nil {
		return nil, err
	}

	result := make([]*domain.DailyClientType, 0, len(resp.ClientType))
	for _, ct := range resp.ClientType {
		date, err := parseDEven(ct.RecDate)
		if err != nil {
			return nil, &ScrapeError{Operation: op, Err: err}
		}
		result = append(result, &domain.DailyClientType{
			Key:         key,
			RecordDate:  date,
			NaturalBuy:  side(ct.BuyICount, ct.BuyIVolume, ct.BuyIValue),
			NaturalSell: side(ct.SellICount, ct.SellIVolume, ct.SellIValue),
			LegalBuy:    side(ct.BuyNCount, ct.BuyNVolume, ct.BuyNValue),
			LegalSell:   side(ct.SellNCount, ct.SellNVolume, ct.SellNValue),
		})
	}
	return result, nil
}

type indexHistoryResponse struct {
	IndexB2 []indexValue `json:"indexB2"`
}

type indexValue struct {
	DEven int     `json:"dEven"`
	Close float64 `json:"xNivInuClMresIbs"`
	Min   float64 `json:"xNivInuPbMresIbs"`
	Max   float64 `json:"xNivInuPhMresIbs"`
}

// FetchIndexHistory returns the daily values of the index behind shortCode.
func (c *Client) FetchIndexHistory(ctx context.Context, key, shortCode string) ([]*domain.DailyIndexValue, error) {
	const op = "index_history"

	var resp indexHistoryResponse
	if err := c.getJSON(ctx, op, indexHistoryPath+escape(shortCode), &resp); err != nil {
		return nil, err
	}

	result := make([]*domain.DailyIndexValue, 0, len(resp.IndexB2))
	for _, v := range resp.IndexB2 {
		date, err := parseDEven(v.DEven)
		if err != nil {
			return nil, &ScrapeError{Operation: op, Err: err}
		}
		result = append(result, &domain.DailyIndexValue{
			Key:        key,
			RecordDate: date,
			CloseValue: v.Close,
			MaxValue:   v.Max,
			MinValue:   v.Min,
		})
	}
	return result, nil
}

func side(count, volume, value float64) domain.ClientTypeSide {
	return domain.ClientTypeSide{Num: round(count), Volume: round(volume), Value: round(value)}
}

func round(v float64) int64 {
	return int64(math.Round(v))
}
