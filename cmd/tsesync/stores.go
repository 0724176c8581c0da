package main

import (
	"context"
	"fmt"

	"tse-market-sync/internal/config"
	"tse-market-sync/internal/domain"
	"tse-market-sync/internal/logging"
	"tse-market-sync/internal/storage"
	"tse-market-sync/internal/storage/clickhouse"
	"tse-market-sync/internal/storage/memory"
	"tse-market-sync/internal/storage/migrations"
	"tse-market-sync/internal/storage/postgres"
)

type stores struct {
	Instruments storage.InstrumentStore
	References  storage.ReferenceStore
	Indices     storage.IndexStore
	Timeseries  storage.TimeseriesStores

	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg config.StorageConfig, logger *logging.Logger) (*stores, error) {
	if cfg.UseMemory {
		logger.Info().Msg("using in-memory storage")
		return openMemory(ctx)
	}

	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info().Msg("connected to postgres, migrations applied")

	s := &stores{
		Instruments: postgres.NewInstrumentStore(pool),
		References:  postgres.NewReferenceStore(pool),
		Indices:     postgres.NewIndexStore(pool),
		Timeseries:  postgres.NewTimeseriesStores(pool),
		closers:     []func(){pool.Close},
	}

	if cfg.TimeseriesBackend == config.BackendClickhouse {
		conn, err := clickhouse.Open(ctx, cfg.ClickhouseDSN)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Timeseries = clickhouse.NewTimeseriesStores(conn)
		s.closers = append(s.closers, func() { _ = conn.Close() })
		logger.Info().Msg("daily series stored in clickhouse")
	}

	return s, nil
}

func openMemory(ctx context.Context) (*stores, error) {
	refs := memory.NewReferenceStore()
	if err := refs.InsertTypes(ctx, domain.DefaultInstrumentTypes); err != nil {
		return nil, fmt.Errorf("seed instrument types: %w", err)
	}
	return &stores{
		Instruments: memory.NewInstrumentStore(refs),
		References:  refs,
		Indices:     memory.NewIndexStore(),
		Timeseries:  memory.NewTimeseriesStores(),
	}, nil
}
