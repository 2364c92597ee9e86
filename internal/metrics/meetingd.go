package metrics

// Set is the collection of meetingd metrics. Components that are given a nil
// *Set create a private one with Discard.
type Set struct {
	registry *Registry

	SyncsTotal        *Counter
	SyncFailuresTotal *Counter
	SessionsAdded     *Counter
	SessionsExtended  *Counter
	SessionsPersisted *Gauge
	StorageDegraded   *Counter
	SyncDuration      *Histogram

	CacheHits        *Counter
	CacheMisses      *Counter
	CacheStale       *Counter
	CacheFetchErrors *Counter

	PipeResolutions        *Counter
	PipeResolutionFailures *Counter
	PipeRateLimited        *Counter
}

// NewSet registers all meetingd metrics on registry.
func NewSet(registry *Registry) *Set {
	if registry == nil {
		registry = NewRegistry("meetingd")
	}
	return &Set{
		registry: registry,

		SyncsTotal:        registry.Counter("syncs_total", "Completed history syncs", nil),
		SyncFailuresTotal: registry.Counter("sync_failures_total", "History syncs aborted because the event source was unavailable", nil),
		SessionsAdded:     registry.Counter("sessions_added_total", "Sessions appended to the history", nil),
		SessionsExtended:  registry.Counter("sessions_extended_total", "Persisted sessions extended by newly fetched events", nil),
		SessionsPersisted: registry.Gauge("sessions_persisted", "Sessions in the persisted history", nil),
		StorageDegraded:   registry.Counter("storage_degraded_total", "History writes that failed and were reported as degraded", nil),
		SyncDuration:      registry.Histogram("sync_duration_seconds", "Duration of history syncs", nil, nil),

		CacheHits:        registry.Counter("cache_hits_total", "Cache lookups served fresh without a fetch", nil),
		CacheMisses:      registry.Counter("cache_misses_total", "Cache lookups that fetched and stored a new value", nil),
		CacheStale:       registry.Counter("cache_stale_total", "Failed fetches served from a stale cache entry", nil),
		CacheFetchErrors: registry.Counter("cache_fetch_errors_total", "Failed fetches with no cache entry to fall back on", nil),

		PipeResolutions:        registry.Counter("pipe_resolutions_total", "Pipe descriptor resolutions attempted", nil),
		PipeResolutionFailures: registry.Counter("pipe_resolution_failures_total", "Pipe descriptor resolutions that failed", nil),
		PipeRateLimited:        registry.Counter("pipe_rate_limited_total", "Pipe resolutions that failed on a rate-limited request", nil),
	}
}

// Discard returns a Set on a private registry that is never exposed.
func Discard() *Set {
	return NewSet(NewRegistry(""))
}

// Registry returns the registry backing the set.
func (s *Set) Registry() *Registry {
	return s.registry
}
