package history

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"meetingd/internal/session"
	"meetingd/internal/store"
)

// DefaultRetainOnStorageFailure is how many sessions a failed write retries
// with.
const DefaultRetainOnStorageFailure = 10

// Repository is the persisted session list, stored as JSON under
// store.KeySessions. Updates are serialized.
type Repository struct {
	kv     store.KV
	retain int

	mu sync.Mutex
}

// NewRepository creates a Repository. When a write fails and retain is
// positive, the write is retried once with the retain most recent sessions.
func NewRepository(kv store.KV, retain int) *Repository {
	return &Repository{kv: kv, retain: retain}
}

// Load returns the persisted sessions, newest first.
func (r *Repository) Load(ctx context.Context) ([]session.Session, error) {
	raw, ok, err := r.kv.Get(ctx, store.KeySessions)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var sessions []session.Session
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return sessions, nil
}

func (r *Repository) save(ctx context.Context, sessions []session.Session) error {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := r.kv.Set(ctx, store.KeySessions, raw); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Update applies fn to the persisted list and writes the result. If the
// write fails, the result is returned with a *StorageDegradedError.
func (r *Repository) Update(ctx context.Context, fn func([]session.Session) ([]session.Session, error)) ([]session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	session.SortNewestFirst(next)

	if err := r.save(ctx, next); err != nil {
		return next, r.degrade(ctx, next, err)
	}
	return next, nil
}

func (r *Repository) degrade(ctx context.Context, sessions []session.Session, cause error) error {
	de := &StorageDegradedError{Err: cause}
	if r.retain <= 0 || len(sessions) <= r.retain {
		return de
	}
	de.Retained = r.retain
	de.RetryErr = r.save(ctx, slices.Clone(sessions[:r.retain]))
	return de
}

// Clear removes every persisted session.
func (r *Repository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.kv.Remove(ctx, store.KeySessions); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Get returns the session with the given ID.
func (r *Repository) Get(ctx context.Context, id string) (session.Session, error) {
	sessions, err := r.Load(ctx)
	if err != nil {
		return session.Session{}, err
	}
	i := indexOf(sessions, id)
	if i < 0 {
		return session.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sessions[i], nil
}

// Modify applies fn to the session with the given ID and persists the list.
func (r *Repository) Modify(ctx context.Context, id string, fn func(*session.Session)) (session.Session, error) {
	var updated session.Session
	_, err := r.Update(ctx, func(sessions []session.Session) ([]session.Session, error) {
		i := indexOf(sessions, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		fn(&sessions[i])
		updated = sessions[i]
		return sessions, nil
	})
	if err != nil && !IsStorageDegraded(err) {
		return session.Session{}, err
	}
	return updated, err
}

// indexOf matches a full ID or a unique prefix of one.
func indexOf(sessions []session.Session, id string) int {
	if id == "" {
		return -1
	}
	found := -1
	for i, s := range sessions {
		if s.ID == id {
			return i
		}
		if len(id) < len(s.ID) && s.ID[:len(id)] == id {
			if found >= 0 {
				return -1
			}
			found = i
		}
	}
	return found
}
