package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"hivisloyalty/internal/model"
	"hivisloyalty/internal/service"
	"hivisloyalty/internal/source"

	"go.uber.org/zap"
)

var (
	ErrPollerRunning    = errors.New("sync poller already running")
	ErrPollerNotRunning = errors.New("sync poller not running")
)

type BatchIngester interface {
	IngestBatch(ctx context.Context, source string, raws []*service.RawTransaction) *service.BatchResult
}

type SyncStatus struct {
	Running     bool       `json:"running"`
	Interval    string     `json:"interval"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastSuccess *time.Time `json:"last_success_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Runs        int        `json:"runs"`
	Fetched     int        `json:"fetched"`
	Created     int        `json:"created"`
	Matched     int        `json:"matched"`
	Duplicates  int        `json:"duplicates"`
}

// SyncPoller periodically pulls purchases from a vending API and feeds them to
// intake. It is owned by whoever constructs it and can be started and stopped
// at runtime; overlapping windows are safe because intake is idempotent.
type SyncPoller struct {
	fetcher  source.Fetcher
	intake   BatchIngester
	interval time.Duration
	lookback time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status SyncStatus
}

func NewSyncPoller(fetcher source.Fetcher, intake BatchIngester, interval, lookback time.Duration, log *zap.Logger) *SyncPoller {
	return &SyncPoller{
		fetcher:  fetcher,
		intake:   intake,
		interval: interval,
		lookback: lookback,
		log:      log.Named("sync_poller"),
		now:      time.Now,
		status:   SyncStatus{Interval: interval.String()},
	}
}

// Start launches the polling loop. It polls once immediately.
func (p *SyncPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrPollerRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.status.Running = true
	go p.loop(loopCtx, p.done)

	p.log.Info("started", zap.Duration("interval", p.interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight poll to finish.
func (p *SyncPoller) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return ErrPollerNotRunning
	}

	cancel()
	<-done
	p.log.Info("stopped")
	return nil
}

func (p *SyncPoller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// loop clears the running state on exit, whether Stop or the parent context
// ended it, so the poller can be started again.
func (p *SyncPoller) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		p.mu.Lock()
		if p.done == done {
			p.cancel()
			p.cancel = nil
			p.done = nil
			p.status.Running = false
		}
		p.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single fetch-and-ingest pass.
func (p *SyncPoller) RunOnce(ctx context.Context) {
	started := p.now()

	p.mu.Lock()
	since := started.Add(-p.lookback)
	if p.status.LastSuccess != nil && p.status.LastSuccess.Add(-p.interval).After(since) {
		since = p.status.LastSuccess.Add(-p.interval)
	}
	p.status.LastRunAt = &started
	p.status.Runs++
	p.mu.Unlock()

	raws, err := p.fetcher.FetchTransactions(ctx, since)
	if err != nil {
		p.mu.Lock()
		p.status.LastError = err.Error()
		p.mu.Unlock()
		if ctx.Err() == nil {
			p.log.Warn("fetch failed", zap.Error(err))
		}
		return
	}

	result := p.intake.IngestBatch(ctx, model.SourcePoll, raws)

	p.mu.Lock()
	p.status.LastSuccess = &started
	p.status.LastError = ""
	p.status.Fetched += len(raws)
	p.status.Created += result.Created
	p.status.Matched += result.Matched
	p.status.Duplicates += result.Duplicates
	p.mu.Unlock()

	if result.Created > 0 || len(result.Errors) > 0 {
		p.log.Info("sync pass",
			zap.Int("fetched", len(raws)),
			zap.Int("created", result.Created),
			zap.Int("matched", result.Matched),
			zap.Int("errors", len(result.Errors)))
	}
}
