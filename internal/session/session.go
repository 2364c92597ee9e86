package session

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
)

// Session is a contiguous run of events, persisted in the history.
type Session struct {
	// ID is stable across segmentation runs; see StableID.
	ID string `json:"id"`
	// GroupID is assigned from 1 within a single segmentation run.
	GroupID int `json:"group_id"`

	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Transcript string    `json:"transcript"`

	// Filled in later by enrichment.
	Name         string `json:"name,omitempty"`
	Participants string `json:"participants,omitempty"`
	Summary      string `json:"summary,omitempty"`
}

// Duration is EndTime - StartTime.
func (s Session) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// TranscriptLength is the number of characters in the transcript once line
// breaks are removed.
func (s Session) TranscriptLength() int {
	return utf8.RuneCountInString(s.Transcript) - strings.Count(s.Transcript, "\n")
}

// Lines returns the transcript split into lines, without terminators.
func (s Session) Lines() []string {
	trimmed := strings.TrimSuffix(s.Transcript, "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

// StableID derives a session identity from its start instant, truncated to
// the second, so independent segmentation runs agree on it.
func StableID(start time.Time) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(start.UTC().Truncate(time.Second).Unix()))
	h, _ := blake2b.New(16, nil)
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

// SortNewestFirst orders sessions by StartTime descending.
func SortNewestFirst(sessions []Session) {
	sortSessions(sessions)
}
