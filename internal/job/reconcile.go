package job

import (
	"context"
	"time"

	"hivisloyalty/internal/service"

	"go.uber.org/zap"
)

type Reconciler interface {
	ReconcileAll(ctx context.Context) (*service.ReconcileSummary, error)
}

// ReconcileJob periodically re-sums every ledger against its cached balance.
type ReconcileJob struct {
	reconciler Reconciler
	log        *zap.Logger
	stopCh     chan struct{}
	interval   time.Duration
}

func NewReconcileJob(reconciler Reconciler, interval time.Duration, log *zap.Logger) *ReconcileJob {
	return &ReconcileJob{
		reconciler: reconciler,
		log:        log.Named("reconcile"),
		stopCh:     make(chan struct{}),
		interval:   interval,
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	j.log.Info("started", zap.Duration("interval", j.interval))

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
			j.run(ctx)
		}
	}
}

func (j *ReconcileJob) Stop() {
	close(j.stopCh)
}

func (j *ReconcileJob) run(ctx context.Context) {
	summary, err := j.reconciler.ReconcileAll(ctx)
	if err != nil {
		j.log.Error("reconcile all", zap.Error(err))
		return
	}
	if len(summary.Repaired) > 0 || summary.Failed > 0 {
		j.log.Warn("reconcile finished with findings",
			zap.Int("checked", summary.Checked),
			zap.Int("repaired", len(summary.Repaired)),
			zap.Int("failed", summary.Failed))
		return
	}
	j.log.Info("reconcile finished", zap.Int("checked", summary.Checked))
}
