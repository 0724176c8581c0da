package domain

// SearchResultItem is one row of the provider's instrument search.
// Produced only by search enumeration, never persisted.
type SearchResultItem struct {
	Ticker      string
	ShortCode   string
	Name        string
	IsActive    bool
	ResultIndex int // rank within the page the provider returned it in
}

// SearchBy selects how a local instrument lookup term is interpreted.
type SearchBy string

const (
	// SearchByKey matches the instrument key exactly.
	SearchByKey SearchBy = "key"
	// SearchByTicker matches tickers containing the term.
	SearchByTicker SearchBy = "ticker"
)

// String returns the string representation of SearchBy.
func (s SearchBy) String() string {
	return string(s)
}

// IsValid checks if the SearchBy value is valid.
func (s SearchBy) IsValid() bool {
	switch s {
	case SearchByKey, SearchByTicker:
		return true
	default:
		return false
	}
}
