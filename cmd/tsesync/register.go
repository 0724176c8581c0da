package main

import (
	"tse-market-sync/internal/config"
	"tse-market-sync/internal/jobs"
	"tse-market-sync/internal/orchestrator"
)

// register adds every job kind to orch. All kinds can be run by name; enabled
// kinds with a run time are also scheduled daily. It returns the enabled
// kinds in dependency order: the instrument list before the searches and the
// histories that read it.
func register(orch *orchestrator.Orchestrator, deps jobs.Deps, cfg config.JobsConfig) []string {
	var enabled []string

	add := func(task jobs.Task, enabledFlag bool, runAt string) {
		hour, minute, err := config.ParseRunAt(runAt)
		daily := enabledFlag && runAt != "" && err == nil
		orch.Register(task, daily, hour, minute)
		if enabledFlag {
			enabled = append(enabled, task.Name())
		}
	}

	add(jobs.NewTask[jobs.InstrumentsUpdaterParams](jobs.NewInstrumentsUpdater(deps), cfg.InstrumentsUpdater.Params),
		cfg.InstrumentsUpdater.Enabled, cfg.InstrumentsUpdater.RunAt)
	add(jobs.NewTask[jobs.InstrumentSearcherParams](jobs.NewInstrumentSearcher(deps), cfg.InstrumentSearcher.Params),
		cfg.InstrumentSearcher.Enabled, cfg.InstrumentSearcher.RunAt)
	add(jobs.NewTask[jobs.IdentityCatcherParams](jobs.NewIdentityCatcher(deps), cfg.IdentityCatcher.Params),
		cfg.IdentityCatcher.Enabled, cfg.IdentityCatcher.RunAt)
	add(jobs.NewTask[jobs.DailyHistoricalParams](jobs.NewDailyHistorical(deps), cfg.DailyHistorical.Params),
		cfg.DailyHistorical.Enabled, cfg.DailyHistorical.RunAt)
	add(jobs.NewTask[jobs.IndexHistoricalParams](jobs.NewIndexHistorical(deps), cfg.IndexHistorical.Params),
		cfg.IndexHistorical.Enabled, cfg.IndexHistorical.RunAt)

	return enabled
}
