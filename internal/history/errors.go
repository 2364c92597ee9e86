package history

import (
	"errors"
	"fmt"
)

var (
	// ErrSyncUnavailable wraps event source failures. Nothing is persisted
	// when it is returned.
	ErrSyncUnavailable = errors.New("event source unavailable")

	// ErrSyncInProgress rejects a sync requested while another is running.
	ErrSyncInProgress = errors.New("sync already in progress")

	ErrSessionNotFound = errors.New("session not found")
)

// StorageDegradedError reports that the session list could not be written.
// The operation's in-memory result is still returned alongside it.
type StorageDegradedError struct {
	Err error
	// Retained is the number of most recent sessions written by the retry,
	// or zero when no retry was attempted.
	Retained int
	// RetryErr is the failure of the retry, if any.
	RetryErr error
}

func (e *StorageDegradedError) Error() string {
	msg := fmt.Sprintf("history storage degraded: %v", e.Err)
	switch {
	case e.Retained == 0:
		return msg
	case e.RetryErr != nil:
		return fmt.Sprintf("%s; keeping %d most recent sessions also failed: %v", msg, e.Retained, e.RetryErr)
	default:
		return fmt.Sprintf("%s; kept only the %d most recent sessions", msg, e.Retained)
	}
}

func (e *StorageDegradedError) Unwrap() error { return e.Err }

// Recovered reports whether the truncated retry was written.
func (e *StorageDegradedError) Recovered() bool {
	return e.Retained > 0 && e.RetryErr == nil
}

// IsStorageDegraded reports whether err is or wraps a *StorageDegradedError.
func IsStorageDegraded(err error) bool {
	var de *StorageDegradedError
	return errors.As(err, &de)
}
