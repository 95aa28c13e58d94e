// Package overlap detects mutual time-interval overlaps with a sweep line.
// It is a pure function of its input: no clocks, no provider knowledge.
package overlap

import (
	"sort"
	"time"
)

// Interval is a half-open [Start, End) time range.
type Interval struct {
	ID    string
	Start time.Time
	End   time.Time
}

type eventKind int

const (
	eventEnd   eventKind = iota // ends sort before starts at equal timestamps
	eventStart
)

type event struct {
	at   time.Time
	kind eventKind
	id   string
}

// Detect returns, for every interval ID, the sorted set of IDs it overlaps
// with. The result is symmetric (A lists B iff B lists A) and independent of
// input order. Two intervals that share only a boundary instant do not
// overlap; zero- or negative-duration intervals never overlap anything.
func Detect(intervals []Interval) map[string][]string {
	edges := make(map[string]map[string]struct{}, len(intervals))
	for _, iv := range intervals {
		edges[iv.ID] = make(map[string]struct{})
	}

	events := make([]event, 0, 2*len(intervals))
	for _, iv := range intervals {
		if !iv.End.After(iv.Start) {
			continue
		}
		events = append(events, event{at: iv.Start, kind: eventStart, id: iv.ID})
		events = append(events, event{at: iv.End, kind: eventEnd, id: iv.ID})
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].at.Equal(events[j].at) {
			return events[i].at.Before(events[j].at)
		}
		if events[i].kind != events[j].kind {
			return events[i].kind < events[j].kind
		}
		return events[i].id < events[j].id
	})

	active := make(map[string]struct{})
	for _, ev := range events {
		if ev.kind == eventEnd {
			delete(active, ev.id)
			continue
		}
		for other := range active {
			edges[ev.id][other] = struct{}{}
			edges[other][ev.id] = struct{}{}
		}
		active[ev.id] = struct{}{}
	}

	result := make(map[string][]string, len(edges))
	for id, set := range edges {
		ids := make([]string, 0, len(set))
		for other := range set {
			ids = append(ids, other)
		}
		sort.Strings(ids)
		result[id] = ids
	}
	return result
}
