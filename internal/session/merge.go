package session

import (
	"slices"
	"strings"
)

// MergeResult is the outcome of folding freshly segmented sessions into a
// persisted history.
type MergeResult struct {
	Sessions []Session
	Added    int
	Extended int
	Skipped  int
}

// Merge folds fresh into persisted. For each fresh session, oldest first:
//
//   - a persisted session with the same ID absorbs any new transcript lines;
//   - otherwise a persisted session that overlaps it, or lies within opts.Gap
//     of it, is extended to cover it and keeps its ID and enrichment;
//   - otherwise it is appended, provided it passes opts.MinTranscriptLength.
//
// The returned list is sorted by StartTime descending. Neither input slice
// is modified.
func Merge(persisted, fresh []Session, opts Options) MergeResult {
	opts = opts.withDefaults()

	res := MergeResult{Sessions: slices.Clone(persisted)}
	incoming := slices.Clone(fresh)
	slices.SortStableFunc(incoming, func(a, b Session) int {
		return a.StartTime.Compare(b.StartTime)
	})

	for _, f := range incoming {
		if i := res.indexByID(f.ID); i >= 0 {
			if extend(&res.Sessions[i], f) {
				res.Extended++
			} else {
				res.Skipped++
			}
			continue
		}
		if i := res.indexAdjacent(f, opts); i >= 0 {
			if extend(&res.Sessions[i], f) {
				res.Extended++
			} else {
				res.Skipped++
			}
			continue
		}
		if !longEnough(f, opts.MinTranscriptLength) {
			res.Skipped++
			continue
		}
		res.Sessions = append(res.Sessions, f)
		res.Added++
	}

	sortSessions(res.Sessions)
	return res
}

func (r *MergeResult) indexByID(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(r.Sessions, func(s Session) bool { return s.ID == id })
}

// indexAdjacent finds the persisted session whose span lies closest to f,
// counting only those within gap of it.
func (r *MergeResult) indexAdjacent(f Session, opts Options) int {
	best := -1
	var bestDist int64
	for i, p := range r.Sessions {
		// distance between the two spans; zero or negative when they overlap
		d := max(f.StartTime.Sub(p.EndTime), p.StartTime.Sub(f.EndTime))
		if d >= opts.Gap {
			continue
		}
		if best < 0 || int64(d) < bestDist {
			best, bestDist = i, int64(d)
		}
	}
	return best
}

// extend widens dst to cover src and merges their transcripts line by line.
// It reports whether dst changed.
func extend(dst *Session, src Session) bool {
	changed := false
	if src.StartTime.Before(dst.StartTime) {
		dst.StartTime = src.StartTime
		changed = true
	}
	if src.EndTime.After(dst.EndTime) {
		dst.EndTime = src.EndTime
		changed = true
	}

	have := make(map[string]struct{})
	lines := dst.Lines()
	for _, l := range lines {
		have[l] = struct{}{}
	}
	added := false
	for _, l := range src.Lines() {
		if _, ok := have[l]; ok {
			continue
		}
		have[l] = struct{}{}
		lines = append(lines, l)
		added = true
	}
	if !added {
		return changed
	}

	slices.SortStableFunc(lines, func(a, b string) int {
		ta, oka := lineTime(a)
		tb, okb := lineTime(b)
		if !oka || !okb {
			return 0
		}
		return ta.Compare(tb)
	})
	dst.Transcript = strings.Join(lines, "\n") + "\n"
	return true
}
