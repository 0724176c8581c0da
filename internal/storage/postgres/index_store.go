package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/storage"
)

// IndexStore implements storage.IndexStore using PostgreSQL.
type IndexStore struct {
	pool *Pool
}

// NewIndexStore creates a new IndexStore.
func NewIndexStore(pool *Pool) *IndexStore {
	return &IndexStore{pool: pool}
}

// Compile-time interface check.
var _ storage.IndexStore = (*IndexStore)(nil)

// Insert adds a new index. Returns ErrDuplicateKey if key exists.
func (s *IndexStore) Insert(ctx context.Context, idx *domain.Index) error {
	if idx == nil || idx.Key == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO index_identification (key, short_code, name_local, name_foreign)
		VALUES ($1, $2, $3, $4)
	`, idx.Key, idx.ShortCode, idx.NameLocal, idx.NameForeign)
	if err != nil {
		return mapWriteError(err, "insert index")
	}
	return nil
}

// GetAll retrieves all indices ordered by key.
func (s *IndexStore) GetAll(ctx context.Context) ([]*domain.Index, error) {
	var indices []*domain.Index
	err := collect(ctx, s.pool, `
		SELECT key, short_code, name_local, name_foreign
		FROM index_identification
		ORDER BY key
	`, func(rows pgx.Rows) error {
		var idx domain.Index
		if err := rows.Scan(&idx.Key, &idx.ShortCode, &idx.NameLocal, &idx.NameForeign); err != nil {
			return err
		}
		indices = append(indices, &idx)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get all indices: %w", err)
	}
	return indices, nil
}
