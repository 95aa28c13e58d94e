// Package briefing decides when the daily briefing is stale and rebuilds it.
package briefing

import (
	"time"

	syncdomain "daybrief-backend/internal/sync/domain"
)

// Imminent-start window bounds. An event whose start falls in
// (now+imminentMin, now+imminentMax] is about to become urgent; with checks
// every 10 minutes each event lands in the window exactly once.
const (
	imminentMin = 20 * time.Minute
	imminentMax = 30 * time.Minute
)

// urgencyLookahead is the wider "coming up soon" horizon; an event crossing
// into it since the previous check also stales the briefing.
const urgencyLookahead = time.Hour

// Regeneration reasons, recorded on the briefing row.
const (
	ReasonDataChanged   = "data_changed"
	ReasonDayRollover   = "day_rollover"
	ReasonEventEnded    = "event_ended"
	ReasonEventUpcoming = "event_upcoming"
	ReasonImminentEvent = "imminent_event"
	ReasonManual        = "manual"
)

// ClassifyInput is everything the classifier looks at for one check.
type ClassifyInput struct {
	Now time.Time
	// Location is the user's timezone; day rollover happens at its midnight.
	// Nil means UTC.
	Location *time.Location
	// LastGeneratedAt is nil when no briefing exists yet.
	LastGeneratedAt *time.Time
	// LastCheckedAt is the previous classifier run; bounds the event-ended
	// scan so an ending fires once.
	LastCheckedAt *time.Time
	Stats         syncdomain.RunStats
	Events        []*syncdomain.CalendarEvent
}

// Decision says whether to regenerate and why.
type Decision struct {
	Regenerate bool
	Reasons    []string
}

// Classify applies the staleness rules. Data rules look at what the sync run
// mutated; time rules fire from the clock alone, so a briefing can go stale
// with zero provider changes.
func Classify(in ClassifyInput) Decision {
	var reasons []string

	if in.Stats.Inserted+in.Stats.Updated+in.Stats.Deleted > 0 {
		reasons = append(reasons, ReasonDataChanged)
	}

	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	if in.LastGeneratedAt == nil {
		reasons = append(reasons, ReasonDayRollover)
	} else if localDay(*in.LastGeneratedAt, loc) != localDay(in.Now, loc) {
		reasons = append(reasons, ReasonDayRollover)
	}

	if in.LastCheckedAt != nil {
		for _, ev := range in.Events {
			if ev.EndsAt.After(*in.LastCheckedAt) && !ev.EndsAt.After(in.Now) {
				reasons = append(reasons, ReasonEventEnded)
				break
			}
		}
		// An event's start crossing into the lookahead horizon since the
		// previous check, i.e. StartsAt in (lastChecked+h, now+h].
		prevHorizon := in.LastCheckedAt.Add(urgencyLookahead)
		horizon := in.Now.Add(urgencyLookahead)
		for _, ev := range in.Events {
			if ev.AllDay {
				continue
			}
			if ev.StartsAt.After(prevHorizon) && !ev.StartsAt.After(horizon) {
				reasons = append(reasons, ReasonEventUpcoming)
				break
			}
		}
	}

	lo := in.Now.Add(imminentMin)
	hi := in.Now.Add(imminentMax)
	for _, ev := range in.Events {
		if ev.AllDay {
			continue
		}
		if ev.StartsAt.After(lo) && !ev.StartsAt.After(hi) {
			reasons = append(reasons, ReasonImminentEvent)
			break
		}
	}

	return Decision{Regenerate: len(reasons) > 0, Reasons: reasons}
}

func localDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
