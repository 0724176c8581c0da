package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/storage"
)

const instrumentColumns = `key, short_code, ticker, name_local, name_foreign, type_code, sector_code, sub_sector_code, market_code`

// InstrumentStore implements storage.InstrumentStore using PostgreSQL.
type InstrumentStore struct {
	pool *Pool
}

// NewInstrumentStore creates a new InstrumentStore.
func NewInstrumentStore(pool *Pool) *InstrumentStore {
	return &InstrumentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.InstrumentStore = (*InstrumentStore)(nil)

// GetAll retrieves all instruments ordered by key.
func (s *InstrumentStore) GetAll(ctx context.Context) ([]*domain.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instrument_identification ORDER BY key`
	instruments, err := s.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all instruments: %w", err)
	}
	return instruments, nil
}

// GetByKey retrieves an instrument by its key. Returns ErrNotFound if not exists.
func (s *InstrumentStore) GetByKey(ctx context.Context, key string) (*domain.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instrument_identification WHERE key = $1`
	inst, err := scanInstrument(s.pool.QueryRow(ctx, query, key))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get instrument by key: %w", err)
	}
	return inst, nil
}

// GetByTicker retrieves all instruments whose ticker equals ticker exactly.
func (s *InstrumentStore) GetByTicker(ctx context.Context, ticker string) ([]*domain.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instrument_identification WHERE ticker = $1 ORDER BY key`
	instruments, err := s.query(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("get instruments by ticker: %w", err)
	}
	return instruments, nil
}

// Search retrieves instruments by key (exact) or ticker (contains), ordered by key.
func (s *InstrumentStore) Search(ctx context.Context, by domain.SearchBy, term string) ([]*domain.Instrument, error) {
	var where string
	switch by {
	case domain.SearchByKey:
		where = `key = $1`
	case domain.SearchByTicker:
		where = `strpos(ticker, $1) > 0`
	default:
		return nil, storage.ErrInvalidInput
	}

	query := `SELECT ` + instrumentColumns + ` FROM instrument_identification WHERE ` + where + ` ORDER BY key`
	instruments, err := s.query(ctx, query, term)
	if err != nil {
		return nil, fmt.Errorf("search instruments by %s: %w", by, err)
	}
	return instruments, nil
}

// Apply writes a change set in one transaction. Reference entries go first so
// inserts and reclassifications can reference them.
func (s *InstrumentStore) Apply(ctx context.Context, cs *domain.ChangeSet) (err error) {
	if cs == nil {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("instruments_apply", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertReferences(ctx, tx, cs); err != nil {
		return err
	}

	for _, inst := range cs.Inserts {
		_, err := tx.Exec(ctx, `
			INSERT INTO instrument_identification (`+instrumentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			inst.Key, inst.ShortCode, inst.Ticker, inst.NameLocal, inst.NameForeign,
			inst.TypeID, inst.SectorID, inst.SubSectorID, inst.MarketID,
		)
		if err != nil {
			return mapWriteError(err, fmt.Sprintf("insert instrument %s", inst.Key))
		}
	}

	for _, inst := range cs.Updates {
		tag, err := tx.Exec(ctx, `
			UPDATE instrument_identification
			SET ticker = $2, name_local = $3, name_foreign = $4, short_code = $5, updated_at = NOW()
			WHERE key = $1
		`, inst.Key, inst.Ticker, inst.NameLocal, inst.NameForeign, inst.ShortCode)
		if err != nil {
			return fmt.Errorf("update instrument %s: %w", inst.Key, err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
	}

	for _, inst := range cs.Reclassifications {
		tag, err := tx.Exec(ctx, `
			UPDATE instrument_identification
			SET sector_code = $2, sub_sector_code = $3, market_code = $4, updated_at = NOW()
			WHERE key = $1
		`, inst.Key, inst.SectorID, inst.SubSectorID, inst.MarketID)
		if err != nil {
			return mapWriteError(err, fmt.Sprintf("reclassify instrument %s", inst.Key))
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *InstrumentStore) query(ctx context.Context, query string, args ...any) ([]*domain.Instrument, error) {
	var instruments []*domain.Instrument
	err := collect(ctx, s.pool, query, func(rows pgx.Rows) error {
		inst, err := scanInstrument(rows)
		if err != nil {
			return err
		}
		instruments = append(instruments, inst)
		return nil
	}, args...)
	return instruments, err
}

// scanInstrument scans a single row into an Instrument.
func scanInstrument(row pgx.Row) (*domain.Instrument, error) {
	var inst domain.Instrument
	err := row.Scan(
		&inst.Key,
		&inst.ShortCode,
		&inst.Ticker,
		&inst.NameLocal,
		&inst.NameForeign,
		&inst.TypeID,
		&inst.SectorID,
		&inst.SubSectorID,
		&inst.MarketID,
	)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}
