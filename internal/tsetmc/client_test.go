package tsetmc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tse-market-sync/internal/ingestion"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base := []ClientOption{
		WithBaseURL(server.URL),
		WithRateLimit(0),
		WithRetryDelay(time.Millisecond),
	}
	return NewClient(append(base, opts...)...)
}

func TestClient_Search(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/Instrument/GetInstrumentSearch/فول", r.URL.Path)
		fmt.Fprint(w, `{"instrumentSearch":[
			{"insCode":"46348559193224090","lVal18AFC":"فولاد","lVal30":"فولاد مبارکه اصفهان","lastDate":20240305},
			{"insCode":"111","lVal18AFC":"فولادح","lVal30":"حق تقدم فولاد","lastDate":0}
		]}`)
	})

	items, err := client.Search(context.Background(), "فول")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "فولاد", items[0].Ticker)
	assert.Equal(t, "46348559193224090", items[0].ShortCode)
	assert.True(t, items[0].IsActive)
	assert.False(t, items[1].IsActive)
	assert.Equal(t, 1, items[1].ResultIndex)
}

func TestClient_FetchIdentity(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/Instrument/GetInstrumentIdentity/46348559193224090", r.URL.Path)
		fmt.Fprint(w, `{"instrumentIdentity":{
			"instrumentID":"IRO1FOLD0001","insCode":"46348559193224090",
			"lVal18AFC":"فولاد","lVal30":"فولاد مبارکه اصفهان","lVal18":"Foolad",
			"yVal":"300","flow":1,"flowTitle":"بورس",
			"sector":{"cSecVal":"27 ","lSecVal30":"فلزات اساسی"},
			"subSector":{"cSoSecVal":2710,"lSoSecVal30":"تولید محصولات فلزی"}
		}}`)
	})

	r, err := client.FetchIdentity(context.Background(), "46348559193224090")
	require.NoError(t, err)

	assert.Equal(t, "IRO1FOLD0001", r.Key)
	assert.Equal(t, 300, r.TypeID)
	require.NotNil(t, r.Sector)
	assert.Equal(t, 27, r.Sector.ID)
	require.NotNil(t, r.SubSector)
	assert.Equal(t, 27, r.SubSector.SectorID)
	assert.Equal(t, 2710, *r.SubSectorID)
	require.NotNil(t, r.Market)
	assert.Equal(t, "بورس", r.Market.Title)
}

func TestClient_FetchIdentity_Missing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"instrumentIdentity":null}`)
	})

	_, err := client.FetchIdentity(context.Background(), "1")

	var scrapeErr *ScrapeError
	require.ErrorAs(t, err, &scrapeErr)
	assert.True(t, IsTransient(err))
}

func TestClient_FetchAll(t *testing.T) {
	row := func(code, isin, symbol string, typ, sector, sub, flow string) string {
		return fmt.Sprintf("%s,%s,LAT,Latin Name,CO,%s,Local Name,CISIN,20240101,%s,soc,1,N1,NO,1,%s,%s,%s",
			code, isin, symbol, flow, sector, sub, typ)
	}
	body := row("1", "IRO1AAAA0001", "الف", "300", "27", "2710", "1") + ";" +
		row("2", "IRO1BBBB0001", "ب", "400", "", "0", "2")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	})

	records, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "IRO1AAAA0001", records[0].Key)
	assert.Equal(t, "1", records[0].ShortCode)
	assert.Equal(t, "Latin Name", records[0].NameForeign)
	assert.Equal(t, 27, *records[0].SectorID)
	assert.Equal(t, 2710, *records[0].SubSectorID)
	assert.Equal(t, 400, records[1].TypeID)
	assert.Nil(t, records[1].SectorID)
	assert.Nil(t, records[1].SubSectorID)
	assert.Equal(t, 2, *records[1].MarketID)
}

func TestParseInstrumentList_Malformed(t *testing.T) {
	_, err := ParseInstrumentList("1,2,3")
	assert.Error(t, err)

	records, err := ParseInstrumentList("  ")
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestClient_FetchTradeHistory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ClosingPrice/GetClosingPriceDailyList/123/0", r.URL.Path)
		fmt.Fprint(w, `{"closingPriceDaily":[
			{"dEven":20240305,"priceYesterday":1000,"priceFirst":1010,"pClosing":1020.4,"pDrCotVal":1030,
			 "priceMax":1050,"priceMin":990,"zTotTran":120,"qTotTran5J":5000000,"qTotCap":5100000000}
		]}`)
	})

	candles, err := client.FetchTradeHistory(context.Background(), "IRO1XXXX0001", "123")
	require.NoError(t, err)
	require.Len(t, candles, 1)

	c := candles[0]
	assert.Equal(t, "IRO1XXXX0001", c.Key)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), c.RecordDate)
	assert.Equal(t, int64(1020), c.ClosePrice)
	assert.Equal(t, int64(5000000), c.TradeVolume)
}

func TestClient_FetchClientTypeHistory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"clientType":[{"recDate":20240305,"buy_I_Volume":10,"buy_N_Volume":5,"sell_I_Volume":7,"buy_I_Count":3}]}`)
	})

	rows, err := client.FetchClientTypeHistory(context.Background(), "K", "123")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, int64(10), rows[0].NaturalBuy.Volume)
	assert.Equal(t, int64(3), rows[0].NaturalBuy.Num)
	assert.Equal(t, int64(5), rows[0].LegalBuy.Volume)
	assert.Equal(t, int64(7), rows[0].NaturalSell.Volume)
	assert.Equal(t, int64(15), rows[0].TradeVolume())
}

func TestClient_FetchIndexHistory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"indexB2":[{"dEven":20240305,"xNivInuClMresIbs":2150000.5,"xNivInuPbMresIbs":2100000,"xNivInuPhMresIbs":2200000}]}`)
	})

	values, err := client.FetchIndexHistory(context.Background(), "IRX6XTPI0006", "32097828799138957")
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, 2150000.5, values[0].CloseValue)
	assert.Equal(t, 2200000.0, values[0].MaxValue)
}

func TestClient_InvalidDateIsMalformed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"indexB2":[{"dEven":20241345}]}`)
	})

	_, err := client.FetchIndexHistory(context.Background(), "K", "1")
	assert.ErrorIs(t, err, ingestion.ErrMalformedResponse)
}

func TestClient_MalformedJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>maintenance</html>`)
	})

	_, err := client.Search(context.Background(), "x")

	assert.ErrorIs(t, err, ingestion.ErrMalformedResponse)
	assert.True(t, IsTransient(err))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"instrumentSearch":[]}`)
	}, WithMaxRetries(3))

	items, err := client.Search(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, WithMaxRetries(3))

	_, err := client.Search(context.Background(), "x")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, IsTransient(err))
}

func TestClient_TimeoutIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}, WithTimeout(20*time.Millisecond), WithMaxRetries(0))

	_, err := client.Search(context.Background(), "x")

	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestClient_CancelledContextIsNotTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"instrumentSearch":[]}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Search(ctx, "x")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsTransient(err))
}

func TestHomepageLink(t *testing.T) {
	assert.Equal(t, "http://www.tsetmc.com/instInfo/123", HomepageURL("123"))
	assert.Equal(t, `<a href="http://www.tsetmc.com/instInfo/123">a&amp;b</a>`, HomepageLink("a&b", "123"))
}
