package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/storage"
)

// ReferenceStore implements storage.ReferenceStore using PostgreSQL.
type ReferenceStore struct {
	pool *Pool
}

// NewReferenceStore creates a new ReferenceStore.
func NewReferenceStore(pool *Pool) *ReferenceStore {
	return &ReferenceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReferenceStore = (*ReferenceStore)(nil)

// GetAll reads all four reference tables.
func (s *ReferenceStore) GetAll(ctx context.Context) (refs *domain.ReferenceSet, err error) {
	start := time.Now()
	defer func() { observe("references_get_all", start, err) }()

	refs = domain.NewReferenceSet()

	err = collect(ctx, s.pool, `SELECT code, title FROM instrument_type`, func(rows pgx.Rows) error {
		var t domain.InstrumentType
		if err := rows.Scan(&t.ID, &t.Title); err != nil {
			return err
		}
		refs.Types[t.ID] = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get instrument types: %w", err)
	}

	err = collect(ctx, s.pool, `SELECT code, title FROM industry_sector`, func(rows pgx.Rows) error {
		var sec domain.Sector
		if err := rows.Scan(&sec.ID, &sec.Title); err != nil {
			return err
		}
		refs.Sectors[sec.ID] = sec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get industry sectors: %w", err)
	}

	err = collect(ctx, s.pool, `SELECT code, sector_code, title FROM industry_sub_sector`, func(rows pgx.Rows) error {
		var sub domain.SubSector
		if err := rows.Scan(&sub.ID, &sub.SectorID, &sub.Title); err != nil {
			return err
		}
		refs.SubSectors[sub.ID] = sub
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get industry sub-sectors: %w", err)
	}

	err = collect(ctx, s.pool, `SELECT code, title FROM exchange_market`, func(rows pgx.Rows) error {
		var m domain.Market
		if err := rows.Scan(&m.ID, &m.Title); err != nil {
			return err
		}
		refs.Markets[m.ID] = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get exchange markets: %w", err)
	}

	return refs, nil
}

// InsertTypes adds instrument types. Existing codes are left untouched.
func (s *ReferenceStore) InsertTypes(ctx context.Context, types []domain.InstrumentType) error {
	if len(types) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range types {
		if _, err := tx.Exec(ctx, `
			INSERT INTO instrument_type (code, title) VALUES ($1, $2)
			ON CONFLICT (code) DO NOTHING
		`, t.ID, t.Title); err != nil {
			return fmt.Errorf("insert instrument type %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// insertReferences writes the reference entries of cs inside tx. Entries that
// already exist are kept as they are.
func insertReferences(ctx context.Context, tx pgx.Tx, cs *domain.ChangeSet) error {
	for _, sec := range cs.Sectors {
		if _, err := tx.Exec(ctx, `
			INSERT INTO industry_sector (code, title) VALUES ($1, $2)
			ON CONFLICT (code) DO NOTHING
		`, sec.ID, sec.Title); err != nil {
			return fmt.Errorf("insert industry sector %d: %w", sec.ID, err)
		}
	}
	for _, sub := range cs.SubSectors {
		if _, err := tx.Exec(ctx, `
			INSERT INTO industry_sub_sector (code, sector_code, title) VALUES ($1, $2, $3)
			ON CONFLICT (code) DO NOTHING
		`, sub.ID, sub.SectorID, sub.Title); err != nil {
			return mapWriteError(err, fmt.Sprintf("insert industry sub-sector %d", sub.ID))
		}
	}
	for _, m := range cs.Markets {
		if _, err := tx.Exec(ctx, `
			INSERT INTO exchange_market (code, title) VALUES ($1, $2)
			ON CONFLICT (code) DO NOTHING
		`, m.ID, m.Title); err != nil {
			return fmt.Errorf("insert exchange market %d: %w", m.ID, err)
		}
	}
	return nil
}

// collect runs query and calls scan for each row.
func collect(ctx context.Context, pool *Pool, query string, scan func(pgx.Rows) error, args ...any) error {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
