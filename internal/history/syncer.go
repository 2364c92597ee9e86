// Package history keeps the persisted list of sessions up to date with the
// capture service and enriches sessions with generated text.
package history

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"meetingd/internal/capture"
	"meetingd/internal/logging"
	"meetingd/internal/metrics"
	"meetingd/internal/session"
)

// DefaultLookback bounds the first sync of an empty history.
const DefaultLookback = 7 * 24 * time.Hour

// EventSource supplies capture events.
type EventSource interface {
	Events(ctx context.Context, q capture.Query) ([]session.Event, error)
}

// State of a Syncer.
type State int32

const (
	StateIdle State = iota
	StateSyncing
)

func (s State) String() string {
	if s == StateSyncing {
		return "syncing"
	}
	return "idle"
}

// Options configures a Syncer.
type Options struct {
	Lookback            time.Duration
	Gap                 time.Duration
	MinTranscriptLength int
	BatchLimit          int
	Kind                session.Kind
}

func (o Options) withDefaults() Options {
	if o.Lookback <= 0 {
		o.Lookback = DefaultLookback
	}
	if o.Gap <= 0 {
		o.Gap = session.DefaultGap
	}
	if o.MinTranscriptLength == 0 {
		o.MinTranscriptLength = session.DefaultMinTranscriptLength
	}
	if o.BatchLimit <= 0 {
		o.BatchLimit = capture.DefaultBatchLimit
	}
	if o.Kind == "" {
		o.Kind = session.KindAudio
	}
	return o
}

// Result summarizes one sync.
type Result struct {
	Sessions   []session.Session
	Added      int
	Extended   int
	FetchStart time.Time
	Events     int
}

// Syncer fetches events recorded since the last persisted session, segments
// them and merges the result into the history.
type Syncer struct {
	repo    *Repository
	source  EventSource
	opts    atomic.Pointer[Options]
	now     func() time.Time
	logger  *logging.Logger
	metrics *metrics.Set

	state atomic.Int32
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

func WithClock(now func() time.Time) SyncerOption {
	return func(s *Syncer) { s.now = now }
}

func WithLogger(l *logging.Logger) SyncerOption {
	return func(s *Syncer) { s.logger = l }
}

func WithMetrics(m *metrics.Set) SyncerOption {
	return func(s *Syncer) { s.metrics = m }
}

// NewSyncer creates a Syncer.
func NewSyncer(repo *Repository, source EventSource, opts Options, options ...SyncerOption) *Syncer {
	s := &Syncer{
		repo:   repo,
		source: source,
		now:    time.Now,
	}
	for _, o := range options {
		o(s)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.logger = s.logger.WithComponent("history")
	if s.metrics == nil {
		s.metrics = metrics.Discard()
	}
	s.SetOptions(opts)
	return s
}

// SetOptions replaces the options used by subsequent syncs.
func (s *Syncer) SetOptions(opts Options) {
	opts = opts.withDefaults()
	s.opts.Store(&opts)
}

// Options returns the effective options.
func (s *Syncer) Options() Options { return *s.opts.Load() }

// State reports whether a sync is running.
func (s *Syncer) State() State { return State(s.state.Load()) }

// Sync runs one incremental sync. A failure of the event source returns an
// error wrapping ErrSyncUnavailable and leaves the history untouched. A
// failed write returns the merged result with a *StorageDegradedError.
//
// Sync does not guard against concurrent calls; Poller does.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	s.state.Store(int32(StateSyncing))
	defer s.state.Store(int32(StateIdle))

	ctx = logging.ContextWithRunID(ctx, logging.NewRunID())
	log := s.logger.WithContext(ctx)
	opts := s.Options()
	started := s.now()
	defer s.metrics.SyncDuration.Since(time.Now())

	persisted, err := s.repo.Load(ctx)
	if err != nil {
		s.metrics.SyncFailuresTotal.Inc()
		return Result{}, err
	}

	res := Result{FetchStart: fetchStart(persisted, started, opts.Lookback)}
	events, err := s.source.Events(ctx, capture.Query{
		Start: res.FetchStart,
		End:   started,
		Limit: opts.BatchLimit,
		Kind:  opts.Kind,
	})
	if err != nil {
		s.metrics.SyncFailuresTotal.Inc()
		log.Warn("event source unavailable", "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrSyncUnavailable, err)
	}
	res.Events = len(events)
	if len(events) >= opts.BatchLimit {
		log.Warn("event batch limit reached; events in this window may have been skipped",
			"limit", opts.BatchLimit, "start", res.FetchStart, "end", started)
	}

	fresh := session.Segment(events, session.Options{Gap: opts.Gap, MinTranscriptLength: -1})
	mergeOpts := session.Options{Gap: opts.Gap, MinTranscriptLength: opts.MinTranscriptLength}

	var merged session.MergeResult
	res.Sessions, err = s.repo.Update(ctx, func(current []session.Session) ([]session.Session, error) {
		merged = session.Merge(current, fresh, mergeOpts)
		return merged.Sessions, nil
	})
	res.Added, res.Extended = merged.Added, merged.Extended

	s.metrics.SyncsTotal.Inc()
	s.metrics.SessionsAdded.Add(uint64(merged.Added))
	s.metrics.SessionsExtended.Add(uint64(merged.Extended))
	s.metrics.SessionsPersisted.Set(int64(len(res.Sessions)))

	if err != nil {
		if IsStorageDegraded(err) {
			s.metrics.StorageDegraded.Inc()
			log.Warn("history write failed", "error", err)
		}
		return res, err
	}

	log.Info("sync complete",
		"fetch_start", res.FetchStart,
		"events", res.Events,
		"added", res.Added,
		"extended", res.Extended,
		"sessions", len(res.Sessions))
	return res, nil
}

// fetchStart is the latest end time in the history, or now-lookback for an
// empty history.
func fetchStart(persisted []session.Session, now time.Time, lookback time.Duration) time.Time {
	var latest time.Time
	for _, s := range persisted {
		if s.EndTime.After(latest) {
			latest = s.EndTime
		}
	}
	if latest.IsZero() {
		return now.Add(-lookback)
	}
	return latest
}

// List returns the persisted sessions, newest first.
func (s *Syncer) List(ctx context.Context) ([]session.Session, error) {
	return s.repo.Load(ctx)
}

// Get returns one persisted session by ID or unique ID prefix.
func (s *Syncer) Get(ctx context.Context, id string) (session.Session, error) {
	return s.repo.Get(ctx, id)
}

// Clear removes all persisted sessions.
func (s *Syncer) Clear(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return err
	}
	s.metrics.SessionsPersisted.Set(0)
	s.logger.Info("history cleared")
	return nil
}
