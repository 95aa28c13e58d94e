package strategy

import (
	"testing"
	"time"

	conndomain "daybrief-backend/internal/connection/domain"
	"daybrief-backend/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		SyncPageSize:          100,
		MailLookbackDays:      7,
		CalendarLookbackDays:  7,
		CalendarLookaheadDays: 30,
		DriveLookbackDays:     14,
	}
}

func TestPlan_InitialWhenNeverSynced(t *testing.T) {
	s := NewSelector(testConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	plan := s.Plan(&conndomain.Connection{Provider: conndomain.ProviderMail}, now)
	if plan.Mode != ModeInitial {
		t.Fatalf("mode = %s, want initial", plan.Mode)
	}
	if want := now.AddDate(0, 0, -7); !plan.WindowStart.Equal(want) {
		t.Fatalf("window start = %v, want %v", plan.WindowStart, want)
	}
	if !plan.WindowEnd.Equal(now) {
		t.Fatalf("window end = %v, want %v", plan.WindowEnd, now)
	}
}

func TestPlan_CalendarInitialWindowAndToken(t *testing.T) {
	s := NewSelector(testConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	plan := s.Plan(&conndomain.Connection{Provider: conndomain.ProviderCalendar}, now)
	if plan.Mode != ModeInitial {
		t.Fatalf("mode = %s, want initial", plan.Mode)
	}
	if want := now.AddDate(0, 0, -7); !plan.WindowStart.Equal(want) {
		t.Fatalf("window start = %v, want %v", plan.WindowStart, want)
	}
	if want := now.AddDate(0, 0, 30); !plan.WindowEnd.Equal(want) {
		t.Fatalf("window end = %v, want %v", plan.WindowEnd, want)
	}
	if !plan.RequestSyncToken {
		t.Fatal("calendar initial plan must request a sync token")
	}
}

func TestPlan_MailDeltaUsesTimestamp(t *testing.T) {
	s := NewSelector(testConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	last := now.Add(-1 * time.Hour)

	plan := s.Plan(&conndomain.Connection{Provider: conndomain.ProviderMail, LastSyncAt: &last}, now)
	if plan.Mode != ModeDelta {
		t.Fatalf("mode = %s, want delta", plan.Mode)
	}
	if plan.UpdatedSince == nil || !plan.UpdatedSince.Equal(last) {
		t.Fatalf("updated since = %v, want %v", plan.UpdatedSince, last)
	}
	if plan.SyncToken != "" {
		t.Fatalf("mail delta must not carry a sync token, got %q", plan.SyncToken)
	}
}

func TestPlan_CalendarDeltaUsesToken(t *testing.T) {
	s := NewSelector(testConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	last := now.Add(-1 * time.Hour)
	token := "opaque-token"

	plan := s.Plan(&conndomain.Connection{
		Provider:   conndomain.ProviderCalendar,
		LastSyncAt: &last,
		SyncToken:  &token,
	}, now)
	if plan.Mode != ModeDelta {
		t.Fatalf("mode = %s, want delta", plan.Mode)
	}
	if plan.SyncToken != token {
		t.Fatalf("sync token = %q, want %q", plan.SyncToken, token)
	}
	if plan.UpdatedSince != nil {
		t.Fatalf("calendar delta must not carry a timestamp, got %v", plan.UpdatedSince)
	}
}

func TestPlan_CalendarWithoutTokenFallsBackToInitial(t *testing.T) {
	s := NewSelector(testConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	last := now.Add(-1 * time.Hour)

	plan := s.Plan(&conndomain.Connection{Provider: conndomain.ProviderCalendar, LastSyncAt: &last}, now)
	if plan.Mode != ModeInitial {
		t.Fatalf("mode = %s, want initial when no token is stored", plan.Mode)
	}
}

func TestFallbackPlan_ExpiredTokenBecomesWindowedFetch(t *testing.T) {
	s := NewSelector(testConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	plan := s.FallbackPlan(conndomain.ProviderCalendar, now)
	if plan.Mode != ModeInitial {
		t.Fatalf("mode = %s, want initial", plan.Mode)
	}
	if plan.SyncToken != "" {
		t.Fatalf("fallback plan must not reuse the expired token, got %q", plan.SyncToken)
	}
	if !plan.RequestSyncToken {
		t.Fatal("fallback plan must request a fresh sync token")
	}
	if want := now.AddDate(0, 0, -7); !plan.WindowStart.Equal(want) {
		t.Fatalf("window start = %v, want %v", plan.WindowStart, want)
	}
}
