package session

import (
	"slices"
	"time"
)

// Defaults for Options.
const (
	DefaultGap                 = 5 * time.Minute
	DefaultMinTranscriptLength = 200
)

// Options tunes segmentation. Zero values select the defaults; a negative
// MinTranscriptLength disables the length filter.
type Options struct {
	Gap                 time.Duration
	MinTranscriptLength int
}

func (o Options) withDefaults() Options {
	if o.Gap <= 0 {
		o.Gap = DefaultGap
	}
	if o.MinTranscriptLength == 0 {
		o.MinTranscriptLength = DefaultMinTranscriptLength
	}
	return o
}

// Segment groups events into sessions. A new session starts whenever the
// distance to the previous event is at least opts.Gap. The result is sorted
// by StartTime descending and excludes sessions whose transcript is shorter
// than opts.MinTranscriptLength. The input slice is not modified.
func Segment(events []Event, opts Options) []Session {
	opts = opts.withDefaults()
	if len(events) == 0 {
		return nil
	}

	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	var (
		sessions []Session
		current  *Session
		prev     time.Time
		groupID  int
	)
	for _, e := range sorted {
		if current == nil || e.Timestamp.Sub(prev) >= opts.Gap {
			if current != nil {
				sessions = append(sessions, *current)
			}
			groupID++
			current = &Session{
				ID:        StableID(e.Timestamp),
				GroupID:   groupID,
				StartTime: e.Timestamp,
				EndTime:   e.Timestamp,
			}
		}
		current.EndTime = e.Timestamp
		current.Transcript += RenderLine(e)
		prev = e.Timestamp
	}
	sessions = append(sessions, *current)

	sortSessions(sessions)

	seen := make(map[int]struct{}, len(sessions))
	out := sessions[:0]
	for _, s := range sessions {
		if _, dup := seen[s.GroupID]; dup {
			continue
		}
		seen[s.GroupID] = struct{}{}
		if !longEnough(s, opts.MinTranscriptLength) {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func longEnough(s Session, min int) bool {
	return min < 0 || s.TranscriptLength() >= min
}

func sortSessions(sessions []Session) {
	slices.SortStableFunc(sessions, func(a, b Session) int {
		return b.StartTime.Compare(a.StartTime)
	})
}
