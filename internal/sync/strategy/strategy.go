// Package strategy decides the fetch parameters of a sync run: a full
// time-windowed initial fetch or an incremental delta, per provider. The
// job state machine consumes the resulting plan without knowing provider
// specifics.
package strategy

import (
	"time"

	conndomain "daybrief-backend/internal/connection/domain"
	"daybrief-backend/pkg/config"
)

type Mode string

const (
	ModeInitial Mode = "initial"
	ModeDelta   Mode = "delta"
)

// FetchPlan is everything a provider client needs to execute one fetch.
type FetchPlan struct {
	Provider string
	Mode     Mode

	// Initial-mode window.
	WindowStart time.Time
	WindowEnd   time.Time

	// Delta-mode checkpoint: exactly one of these is set. Mail and drive
	// deltas cut on a timestamp; calendar deltas use the provider's opaque
	// token.
	UpdatedSince *time.Time
	SyncToken    string

	PageSize int

	// RequestSyncToken asks the provider for a fresh delta token alongside
	// the results (calendar initial fetches and token-expiry fallbacks).
	RequestSyncToken bool
}

// Selector builds fetch plans from connection state and configured windows.
type Selector struct {
	cfg *config.Config
}

func NewSelector(cfg *config.Config) *Selector {
	return &Selector{cfg: cfg}
}

// Plan picks initial vs delta for a connection. A connection with no prior
// successful sync always gets an initial plan.
func (s *Selector) Plan(conn *conndomain.Connection, now time.Time) FetchPlan {
	if conn.LastSyncAt == nil {
		return s.initialPlan(conn.Provider, now)
	}

	plan := FetchPlan{
		Provider: conn.Provider,
		Mode:     ModeDelta,
		PageSize: s.cfg.SyncPageSize,
	}

	switch conn.Provider {
	case conndomain.ProviderCalendar:
		if conn.SyncToken == nil || *conn.SyncToken == "" {
			// Connected before a token was ever issued; re-window and ask
			// for one.
			return s.initialPlan(conn.Provider, now)
		}
		plan.SyncToken = *conn.SyncToken
		plan.RequestSyncToken = true
	default:
		since := *conn.LastSyncAt
		plan.UpdatedSince = &since
	}
	return plan
}

// FallbackPlan replaces a delta plan whose token the provider rejected as
// expired. It is a full windowed fetch that also issues a fresh token.
func (s *Selector) FallbackPlan(provider string, now time.Time) FetchPlan {
	plan := s.initialPlan(provider, now)
	plan.RequestSyncToken = true
	return plan
}

func (s *Selector) initialPlan(provider string, now time.Time) FetchPlan {
	plan := FetchPlan{
		Provider: provider,
		Mode:     ModeInitial,
		PageSize: s.cfg.SyncPageSize,
		WindowEnd: now,
	}

	switch provider {
	case conndomain.ProviderMail:
		plan.WindowStart = now.AddDate(0, 0, -s.cfg.MailLookbackDays)
	case conndomain.ProviderCalendar:
		plan.WindowStart = now.AddDate(0, 0, -s.cfg.CalendarLookbackDays)
		plan.WindowEnd = now.AddDate(0, 0, s.cfg.CalendarLookaheadDays)
		plan.RequestSyncToken = true
	case conndomain.ProviderDrive:
		plan.WindowStart = now.AddDate(0, 0, -s.cfg.DriveLookbackDays)
	default:
		plan.WindowStart = now.AddDate(0, 0, -s.cfg.MailLookbackDays)
	}
	return plan
}
