package job

import (
	"context"
	"time"

	"hivisloyalty/internal/model"

	"go.uber.org/zap"
)

type SeasonEnsurer interface {
	EnsureCurrentSeason(ctx context.Context) (*model.Season, error)
}

// SeasonRolloverJob opens each month's season even when no purchase arrives
// around midnight on the first.
type SeasonRolloverJob struct {
	seasons  SeasonEnsurer
	log      *zap.Logger
	stopCh   chan struct{}
	interval time.Duration
}

func NewSeasonRolloverJob(seasons SeasonEnsurer, interval time.Duration, log *zap.Logger) *SeasonRolloverJob {
	return &SeasonRolloverJob{
		seasons:  seasons,
		log:      log.Named("season_rollover"),
		stopCh:   make(chan struct{}),
		interval: interval,
	}
}

func (j *SeasonRolloverJob) Start(ctx context.Context) {
	j.log.Info("started", zap.Duration("interval", j.interval))
	j.ensure(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("context done, exiting")
			return
		case <-j.stopCh:
			j.log.Info("stopped")
			return
		case <-ticker.C:
			j.ensure(ctx)
		}
	}
}

func (j *SeasonRolloverJob) Stop() {
	close(j.stopCh)
}

func (j *SeasonRolloverJob) ensure(ctx context.Context) {
	season, err := j.seasons.EnsureCurrentSeason(ctx)
	if err != nil {
		j.log.Error("ensure current season", zap.Error(err))
		return
	}
	j.log.Debug("season checked", zap.String("season", season.Name))
}
