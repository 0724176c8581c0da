package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tse-market-sync/internal/config"
	"tse-market-sync/internal/jobs"
	"tse-market-sync/internal/logging"
	"tse-market-sync/internal/observability"
	"tse-market-sync/internal/orchestrator"
	"tse-market-sync/internal/tsetmc"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	jobName := flag.String("job", "", "Run a single job once and exit")
	searchBy := flag.String("search-by", "", "search_by parameter for -job (identity_catcher, instrument_searcher, daily_historical)")
	once := flag.Bool("once", false, "Run every enabled job once and exit")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config, \"-\" to disable)")

	flag.Parse()

	cfg, err := loadConfig(*configPath, *useMemory, *metricsAddr)
	if err != nil {
		logging.New("info").Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(cfg.Logging.Level)

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger, *jobName, *searchBy, *once)
	close(done)
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("exiting")
	}
	logger.Info().Msg("shutdown complete")
}

func loadConfig(path string, useMemory bool, metricsAddr string) (*config.Config, error) {
	return config.Load(path, func(cfg *config.Config) {
		if useMemory {
			cfg.Storage.UseMemory = true
		}
		switch metricsAddr {
		case "":
		case "-":
			cfg.Metrics.Addr = ""
		default:
			cfg.Metrics.Addr = metricsAddr
		}
	})
}

func serveMetrics(addr string, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	logger.Info().Str("addr", addr).Msg("starting metrics server")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, jobName, searchBy string, once bool) error {
	stores, err := openStores(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	client := tsetmc.NewClient(
		tsetmc.WithBaseURL(cfg.Provider.BaseURL),
		tsetmc.WithTimeout(cfg.Provider.Timeout),
		tsetmc.WithRateLimit(cfg.Provider.RateLimit),
		tsetmc.WithMaxRetries(cfg.Provider.MaxRetries),
		tsetmc.WithLogger(logger),
	)

	deps := jobs.Deps{
		Fetcher:     client,
		Instruments: stores.Instruments,
		References:  stores.References,
		Indices:     stores.Indices,
		Timeseries:  stores.Timeseries,
		ChunkSize:   cfg.Sync.ChunkSize,
		SearchCap:   cfg.Sync.SearchCap,
		CallTimeout: cfg.Sync.CallTimeout,
		Logger:      logger,
	}

	jobsCfg := cfg.Jobs
	if searchBy != "" {
		jobsCfg.InstrumentSearcher.Params.SearchBy = searchBy
		jobsCfg.IdentityCatcher.Params.SearchBy = searchBy
		jobsCfg.DailyHistorical.Params.SearchBy = searchBy
	}

	orch := orchestrator.New(orchestrator.Options{Logger: logger, Location: jobsCfg.Location()})
	enabled := register(orch, deps, jobsCfg)

	switch {
	case jobName != "":
		return runSingle(ctx, orch, jobName)
	case once:
		for _, name := range enabled {
			if _, err := orch.RunOnce(ctx, name); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return nil
	default:
		logger.Info().Strs("jobs", enabled).Msg("scheduler started")
		orch.Start(ctx)
		return ctx.Err()
	}
}

func runSingle(ctx context.Context, orch *orchestrator.Orchestrator, name string) error {
	result, err := orch.RunOnce(ctx, name)
	if err != nil {
		return err
	}
	return result.Err
}
