package history

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"meetingd/internal/logging"
)

// PollerConfig configures a Poller.
type PollerConfig struct {
	// Interval between scheduled syncs (default: 5 minutes)
	Interval time.Duration

	// MinInterval is the smallest accepted interval (default: 10 seconds)
	MinInterval time.Duration

	// OnResult is called after every sync, scheduled or triggered.
	OnResult func(Result, error)

	Logger *logging.Logger
}

// DefaultPollerConfig returns the defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:    5 * time.Minute,
		MinInterval: 10 * time.Second,
	}
}

// PollerStats counts syncs run by a Poller.
type PollerStats struct {
	Runs      uint64
	Failures  uint64
	Rejected  uint64
	LastRun   time.Time
	LastError error
}

// Poller runs a Syncer on a schedule and on demand, one sync at a time.
type Poller struct {
	mu     sync.Mutex
	config PollerConfig
	syncer *Syncer
	logger *logging.Logger

	running atomic.Bool
	busy    atomic.Bool
	ticker  *time.Ticker
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	stats PollerStats
}

// NewPoller creates a Poller for syncer.
func NewPoller(syncer *Syncer, config PollerConfig) *Poller {
	def := DefaultPollerConfig()
	if config.MinInterval <= 0 {
		config.MinInterval = def.MinInterval
	}
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	config.Interval = max(config.Interval, config.MinInterval)
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Poller{
		config: config,
		syncer: syncer,
		logger: logger.WithComponent("history"),
	}
}

// Start syncs immediately and then on every interval until Stop or ctx is
// done.
func (p *Poller) Start(ctx context.Context) {
	if p.running.Swap(true) {
		return
	}

	p.mu.Lock()
	ctx, p.cancel = context.WithCancel(ctx)
	p.ticker = time.NewTicker(p.config.Interval)
	ticker := p.ticker
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx, ticker)

	p.logger.Info("poller started", "interval", p.config.Interval)
}

func (p *Poller) run(ctx context.Context, ticker *time.Ticker) {
	defer p.wg.Done()
	defer ticker.Stop()

	p.scheduled(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.scheduled(ctx)
		}
	}
}

func (p *Poller) scheduled(ctx context.Context) {
	if _, err := p.Trigger(ctx); errors.Is(err, ErrSyncInProgress) {
		p.logger.Debug("scheduled sync skipped", "reason", err)
	}
}

// Stop stops scheduled syncs and waits for a running one to finish.
func (p *Poller) Stop() {
	if !p.running.Swap(false) {
		return
	}
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Info("poller stopped")
}

// Trigger runs a sync now. It returns ErrSyncInProgress without syncing if
// one is already running.
func (p *Poller) Trigger(ctx context.Context) (Result, error) {
	if !p.busy.CompareAndSwap(false, true) {
		p.mu.Lock()
		p.stats.Rejected++
		p.mu.Unlock()
		return Result{}, ErrSyncInProgress
	}
	defer p.busy.Store(false)

	res, err := p.syncer.Sync(ctx)

	p.mu.Lock()
	p.stats.Runs++
	p.stats.LastRun = time.Now()
	p.stats.LastError = err
	if err != nil && !IsStorageDegraded(err) {
		p.stats.Failures++
	}
	onResult := p.config.OnResult
	p.mu.Unlock()

	switch {
	case IsStorageDegraded(err):
		p.logger.Error("history storage degraded", "error", err)
	case err != nil:
		p.logger.Warn("sync failed", "error", err)
	}
	if onResult != nil {
		onResult(res, err)
	}
	return res, err
}

// SetInterval changes the schedule, clamped to MinInterval.
func (p *Poller) SetInterval(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	interval = max(interval, p.config.MinInterval)
	if interval == p.config.Interval {
		return
	}
	p.config.Interval = interval
	if p.ticker != nil {
		p.ticker.Reset(interval)
	}
	p.logger.Info("poll interval updated", "interval", interval)
}

// Interval returns the current schedule.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config.Interval
}

// Stats returns a snapshot of the counters.
func (p *Poller) Stats() PollerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
