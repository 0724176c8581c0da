package tsetmc

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tse-market-sync/internal/domain"
)

const (
	instrumentListPath     = "/api/Instrument/GetInstrumentList"
	instrumentSearchPath   = "/api/Instrument/GetInstrumentSearch/"
	instrumentIdentityPath = "/api/Instrument/GetInstrumentIdentity/"
)

// Field positions of one row in the instrument list. Rows are separated by
// ';' and fields by ','.
const (
	listInsCode = iota
	listInstrumentID
	listLatinSymbol
	listLatinName
	listCompanyCode
	listSymbol
	listName
	listCIsin
	listDEven
	listFlow
	listLSoc30
	listCGdSVal
	listCGrValCot
	listYMarNSC
	listCComVal
	listCSecVal
	listCSoSecVal
	listYVal
	listFieldCount
)

// FetchAll returns every instrument in the provider's instrument list.
func (c *Client) FetchAll(ctx context.Context) ([]*domain.RemoteInstrument, error) {
	body, err := c.get(ctx, "instrument_list", instrumentListPath)
	if err != nil {
		return nil, err
	}
	result, err := ParseInstrumentList(string(body))
	if err != nil {
		return nil, &ScrapeError{Operation: "instrument_list", Err: err}
	}
	return result, nil
}

// ParseInstrumentList parses the semicolon separated instrument list.
// Optional numeric codes that are empty or zero are left nil.
func ParseInstrumentList(body string) ([]*domain.RemoteInstrument, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}

	var result []*domain.RemoteInstrument
	for i, row := range strings.Split(body, ";") {
		row = strings.TrimSpace(row)
		if row == "" {
			continue
		}
		fields := strings.Split(row, ",")
		if len(fields) < listFieldCount {
			return nil, fmt.Errorf("row %d: expected %d fields, got %d", i, listFieldCount, len(fields))
		}

		typeID, err := strconv.Atoi(strings.TrimSpace(fields[listYVal]))
		if err != nil {
			return nil, fmt.Errorf("row %d: instrument type %q: %w", i, fields[listYVal], err)
		}

		result = append(result, &domain.RemoteInstrument{Instrument: domain.Instrument{
			Key:         strings.TrimSpace(fields[listInstrumentID]),
			ShortCode:   strings.TrimSpace(fields[listInsCode]),
			Ticker:      fields[listSymbol],
			NameLocal:   fields[listName],
			NameForeign: fields[listLatinName],
			TypeID:      typeID,
			SectorID:    optionalCode(fields[listCSecVal]),
			SubSectorID: optionalCode(fields[listCSoSecVal]),
			MarketID:    optionalCode(fields[listFlow]),
		}})
	}
	return result, nil
}

func optionalCode(s string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v == 0 {
		return nil
	}
	return &v
}

type searchResponse struct {
	InstrumentSearch []searchItem `json:"instrumentSearch"`
}

type searchItem struct {
	InsCode   string `json:"insCode"`
	LVal18AFC string `json:"lVal18AFC"`
	LVal30    string `json:"lVal30"`
	LastDate  int    `json:"lastDate"`
}

// Search queries the provider's instrument search. The provider returns at
// most 40 rows; inactive instruments have no last trading date.
func (c *Client) Search(ctx context.Context, term string) ([]*domain.SearchResultItem, error) {
	var resp searchResponse
	if err := c.getJSON(ctx, "instrument_search", instrumentSearchPath+escape(term), &resp); err != nil {
		return nil, err
	}

	result := make([]*domain.SearchResultItem, 0, len(resp.InstrumentSearch))
	for i, item := range resp.InstrumentSearch {
		result = append(result, &domain.SearchResultItem{
			Ticker:      item.LVal18AFC,
			ShortCode:   item.InsCode,
			Name:        item.LVal30,
			IsActive:    item.LastDate != 0,
			ResultIndex: i,
		})
	}
	return result, nil
}

type identityResponse struct {
	InstrumentIdentity *identity `json:"instrumentIdentity"`
}

type identity struct {
	InstrumentID string `json:"instrumentID"`
	InsCode      string `json:"insCode"`
	LVal18AFC    string `json:"lVal18AFC"`
	LVal30       string `json:"lVal30"`
	LVal18       string `json:"lVal18"`
	YVal         string `json:"yVal"`
	Flow         int    `json:"flow"`
	FlowTitle    string `json:"flowTitle"`
	Sector       struct {
		CSecVal   string `json:"cSecVal"`
		LSecVal30 string `json:"lSecVal30"`
	} `json:"sector"`
	SubSector struct {
		CSoSecVal   int    `json:"cSoSecVal"`
		LSoSecVal30 string `json:"lSoSecVal30"`
	} `json:"subSector"`
}

// FetchIdentity returns the detailed identity of the instrument behind shortCode.
func (c *Client) FetchIdentity(ctx context.Context, shortCode string) (*domain.RemoteInstrument, error) {
	const op = "instrument_identity"

	var resp identityResponse
	if err := c.getJSON(ctx, op, instrumentIdentityPath+escape(shortCode), &resp); err != nil {
		return nil, err
	}
	id := resp.InstrumentIdentity
	if id == nil || strings.TrimSpace(id.InstrumentID) == "" {
		return nil, &ScrapeError{Operation: op, Err: fmt.Errorf("no identity for code %s", shortCode)}
	}

	typeID, err := strconv.Atoi(strings.TrimSpace(id.YVal))
	if err != nil {
		return nil, &ScrapeError{Operation: op, Err: fmt.Errorf("instrument type %q: %w", id.YVal, err)}
	}

	r := &domain.RemoteInstrument{Instrument: domain.Instrument{
		Key:         id.InstrumentID,
		ShortCode:   id.InsCode,
		Ticker:      id.LVal18AFC,
		NameLocal:   id.LVal30,
		NameForeign: id.LVal18,
		TypeID:      typeID,
	}}

	if sectorID := optionalCode(id.Sector.CSecVal); sectorID != nil {
		r.SectorID = sectorID
		r.Sector = &domain.Sector{ID: *sectorID, Title: id.Sector.LSecVal30}
	}
	if id.SubSector.CSoSecVal != 0 {
		r.SubSectorID = domain.IntPtr(id.SubSector.CSoSecVal)
		r.SubSector = &domain.SubSector{ID: id.SubSector.CSoSecVal, Title: id.SubSector.LSoSecVal30}
		if r.SectorID != nil {
			r.SubSector.SectorID = *r.SectorID
		}
	}
	if id.Flow != 0 {
		r.MarketID = domain.IntPtr(id.Flow)
		r.Market = &domain.Market{ID: id.Flow, Title: id.FlowTitle}
	}
	return r, nil
}
