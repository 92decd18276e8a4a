package scheduler

import (
	"context"

	"github.com/dmaas/ivcrush/internal/monitor"
)

// HealthSource reports the current process health. Implemented by the
// orchestrator.
type HealthSource interface {
	Health() monitor.HealthSnapshot
}

// HealthSnapshotJob periodically appends a health snapshot to the NDJSON
// health log.
type HealthSnapshotJob struct {
	source    HealthSource
	healthLog *monitor.HealthLog
	schedule  string
}

// NewHealthSnapshotJob records source's health on the given cron schedule.
func NewHealthSnapshotJob(source HealthSource, healthLog *monitor.HealthLog, schedule string) *HealthSnapshotJob {
	if schedule == "" {
		schedule = "*/5 * * * *"
	}
	return &HealthSnapshotJob{source: source, healthLog: healthLog, schedule: schedule}
}

func (j *HealthSnapshotJob) Name() string     { return "health_snapshot" }
func (j *HealthSnapshotJob) Schedule() string { return j.schedule }

func (j *HealthSnapshotJob) Run(ctx context.Context) error {
	return j.healthLog.Record(j.source.Health())
}

// UniverseRefresher re-resolves the ticker universe. Implemented by
// universe.CachedSource.
type UniverseRefresher interface {
	Refresh(ctx context.Context) error
}

// UniverseRefreshJob keeps a scraped ticker universe current.
type UniverseRefreshJob struct {
	refresher UniverseRefresher
}

func NewUniverseRefreshJob(refresher UniverseRefresher) *UniverseRefreshJob {
	return &UniverseRefreshJob{refresher: refresher}
}

func (j *UniverseRefreshJob) Name() string     { return "universe_refresh" }
func (j *UniverseRefreshJob) Schedule() string { return "@daily" }

func (j *UniverseRefreshJob) Run(ctx context.Context) error {
	return j.refresher.Refresh(ctx)
}
