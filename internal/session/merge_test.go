package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func segmentOne(t *testing.T, events ...Event) Session {
	t.Helper()
	got := Segment(events, noFilter())
	require.Len(t, got, 1)
	return got[0]
}

func TestMergeKeepsCollidingGroupIDs(t *testing.T) {
	persisted := segmentOne(t, ev(0, "ten o'clock"))
	fresh := segmentOne(t, ev(60, "eleven o'clock"))
	require.Equal(t, 1, persisted.GroupID)
	require.Equal(t, 1, fresh.GroupID)

	res := Merge([]Session{persisted}, []Session{fresh}, noFilter())

	require.Len(t, res.Sessions, 2)
	assert.Equal(t, 1, res.Added)
	assert.True(t, res.Sessions[0].StartTime.Equal(at(60)))
	assert.True(t, res.Sessions[1].StartTime.Equal(at(0)))
	assert.NotEqual(t, res.Sessions[0].ID, res.Sessions[1].ID)
}

func TestMergeExtendsAdjacentSession(t *testing.T) {
	persisted := segmentOne(t, ev(0, "a"), ev(2, "b"))
	persisted.Name = "standup"
	persisted.Summary = "talked"

	// refetch starting at the persisted end: first event overlaps, then continues
	fresh := segmentOne(t, ev(2, "b"), ev(4, "c"), ev(6, "d"))

	res := Merge([]Session{persisted}, []Session{fresh}, noFilter())

	require.Len(t, res.Sessions, 1)
	got := res.Sessions[0]
	assert.Equal(t, 1, res.Extended)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, persisted.ID, got.ID)
	assert.Equal(t, "standup", got.Name)
	assert.Equal(t, "talked", got.Summary)
	assert.True(t, got.StartTime.Equal(at(0)))
	assert.True(t, got.EndTime.Equal(at(6)))

	lines := got.Lines()
	require.Len(t, lines, 4)
	for i, text := range []string{"a", "b", "c", "d"} {
		assert.True(t, strings.HasSuffix(lines[i], "] "+text), "line %d = %q", i, lines[i])
	}
}

func TestMergeSameIDWithoutNewLinesIsSkipped(t *testing.T) {
	s := segmentOne(t, ev(0, "a"), ev(1, "b"))

	res := Merge([]Session{s}, []Session{s}, noFilter())

	assert.Equal(t, []Session{s}, res.Sessions)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Added+res.Extended)
}

func TestMergeAppliesMinLengthOnlyToNewSessions(t *testing.T) {
	persisted := segmentOne(t, ev(0, strings.Repeat("x", 300)))
	shortTail := segmentOne(t, ev(3, "ok"))
	shortNew := segmentOne(t, ev(120, "hm"))

	res := Merge([]Session{persisted}, []Session{shortNew, shortTail}, Options{})

	require.Len(t, res.Sessions, 1)
	assert.Equal(t, 1, res.Extended)
	assert.Equal(t, 1, res.Skipped)
	assert.True(t, res.Sessions[0].EndTime.Equal(at(3)))
}

func TestMergeSortsNewestFirstAndLeavesInputs(t *testing.T) {
	older := segmentOne(t, ev(0, "old"))
	newer := segmentOne(t, ev(30, "new"))
	newest := segmentOne(t, ev(90, "newest"))
	persisted := []Session{newer, older}

	res := Merge(persisted, []Session{newest}, Options{Gap: time.Minute, MinTranscriptLength: -1})

	require.Len(t, res.Sessions, 3)
	assert.Equal(t, newest.ID, res.Sessions[0].ID)
	assert.Equal(t, newer.ID, res.Sessions[1].ID)
	assert.Equal(t, older.ID, res.Sessions[2].ID)
	assert.Equal(t, []Session{newer, older}, persisted)
}

func TestTranscriptLengthIgnoresLineBreaks(t *testing.T) {
	s := Session{Transcript: "ab\ncd\n"}
	assert.Equal(t, 4, s.TranscriptLength())
	assert.Equal(t, []string{"ab", "cd"}, s.Lines())
	assert.Nil(t, Session{}.Lines())
}
