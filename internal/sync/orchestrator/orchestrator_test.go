package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	briefdomain "daybrief-backend/internal/briefing/domain"
	conndomain "daybrief-backend/internal/connection/domain"
	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/pkg/config"
)

type recordedRun struct {
	provider string
	trigger  string
	key      string
}

type stubSyncUC struct {
	mu         sync.Mutex
	runs       []recordedRun
	inFlight   int32
	maxFlight  int32
	perUserSeq map[string]int32
	delay      time.Duration
	stats      syncdomain.RunStats
}

func (s *stubSyncUC) RunSync(_ context.Context, userID, providerName, trigger, key string) (*syncdomain.SyncOutcome, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	for {
		max := atomic.LoadInt32(&s.maxFlight)
		if n <= max || atomic.CompareAndSwapInt32(&s.maxFlight, max, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.runs = append(s.runs, recordedRun{provider: providerName, trigger: trigger, key: key})
	s.mu.Unlock()
	atomic.AddInt32(&s.inFlight, -1)
	return &syncdomain.SyncOutcome{Provider: providerName, Trigger: trigger, Stats: s.stats}, nil
}

func (s *stubSyncUC) Disconnect(_ context.Context, _, _ string) error { return nil }
func (s *stubSyncUC) RetentionSweep(_ context.Context) error          { return nil }
func (s *stubSyncUC) ReapStuckJobs() error                            { return nil }

func (s *stubSyncUC) recorded() []recordedRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedRun, len(s.runs))
	copy(out, s.runs)
	return out
}

type stubBriefingUC struct {
	mu          sync.Mutex
	checks      int
	regenerates int
}

func (b *stubBriefingUC) CheckAndRegenerate(_ context.Context, _ string, _ syncdomain.RunStats) (*briefdomain.Briefing, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checks++
	return nil, nil
}
func (b *stubBriefingUC) Regenerate(_ context.Context, _ string, _ []string) (*briefdomain.Briefing, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regenerates++
	return nil, nil
}
func (b *stubBriefingUC) Today(_ string) (*briefdomain.Briefing, error) { return nil, nil }
func (b *stubBriefingUC) PurgeUser(_ string) error                      { return nil }

type stubConnRepo struct{ users []string }

func (r *stubConnRepo) Upsert(*conndomain.Connection) error { return nil }
func (r *stubConnRepo) FindByUserAndProvider(string, string) (*conndomain.Connection, error) {
	return nil, nil
}
func (r *stubConnRepo) FindByUser(userID string) ([]*conndomain.Connection, error) {
	return []*conndomain.Connection{
		{UserID: userID, Provider: conndomain.ProviderMail, Status: conndomain.StatusConnected},
	}, nil
}
func (r *stubConnRepo) FindByExternalAccount(string, string) (*conndomain.Connection, error) {
	return nil, nil
}
func (r *stubConnRepo) RecordSyncSuccess(string, time.Time, *string) error { return nil }
func (r *stubConnRepo) MarkError(string, string) error                     { return nil }
func (r *stubConnRepo) UpdateTokens(string, string, string, time.Time) error {
	return nil
}
func (r *stubConnRepo) Delete(string) error                  { return nil }
func (r *stubConnRepo) ListActiveUserIDs() ([]string, error) { return r.users, nil }

func testOrchestrator(syncUC *stubSyncUC, briefUC *stubBriefingUC) *Orchestrator {
	cfg := &config.Config{
		AutoSyncMinutes: 10,
		DedupWindow:     5 * time.Second,
	}
	return NewOrchestrator(cfg, syncUC, briefUC, &stubConnRepo{}, nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestEnqueueDedupsWithinWindow(t *testing.T) {
	syncUC := &stubSyncUC{delay: 50 * time.Millisecond}
	o := testOrchestrator(syncUC, &stubBriefingUC{})
	defer o.Stop()

	if !o.Enqueue("u1", []string{"mail", "calendar"}, syncdomain.TriggerManual) {
		t.Fatal("first enqueue must be accepted")
	}
	if o.Enqueue("u1", []string{"calendar", "mail"}, syncdomain.TriggerManual) {
		t.Fatal("identical provider set inside the dedup window must coalesce")
	}
	if !o.Enqueue("u1", []string{"mail"}, syncdomain.TriggerManual) {
		t.Fatal("different provider set must not be coalesced")
	}
}

func TestRunsForOneUserAreSequential(t *testing.T) {
	syncUC := &stubSyncUC{delay: 30 * time.Millisecond}
	o := testOrchestrator(syncUC, &stubBriefingUC{})
	defer o.Stop()

	o.Enqueue("u1", []string{"mail"}, syncdomain.TriggerManual)
	o.Enqueue("u1", []string{"calendar"}, syncdomain.TriggerManual)

	waitFor(t, func() bool { return len(syncUC.recorded()) == 2 })

	if atomic.LoadInt32(&syncUC.maxFlight) != 1 {
		t.Fatalf("runs for one user must not overlap, max in-flight was %d", syncUC.maxFlight)
	}
	runs := syncUC.recorded()
	if runs[0].provider != "mail" || runs[1].provider != "calendar" {
		t.Fatalf("queue order not preserved: %+v", runs)
	}
}

func TestProvidersFanOutWithinOneRun(t *testing.T) {
	syncUC := &stubSyncUC{delay: 30 * time.Millisecond}
	o := testOrchestrator(syncUC, &stubBriefingUC{})
	defer o.Stop()

	o.Enqueue("u1", []string{"mail", "calendar", "drive"}, syncdomain.TriggerManual)
	waitFor(t, func() bool { return len(syncUC.recorded()) == 3 })

	if atomic.LoadInt32(&syncUC.maxFlight) < 2 {
		t.Fatalf("providers within one run should fetch in parallel, max in-flight was %d", syncUC.maxFlight)
	}
}

func TestManualRunAlwaysRegenerates(t *testing.T) {
	syncUC := &stubSyncUC{}
	briefUC := &stubBriefingUC{}
	o := testOrchestrator(syncUC, briefUC)
	defer o.Stop()

	o.Enqueue("u1", []string{"mail"}, syncdomain.TriggerManual)
	waitFor(t, func() bool {
		briefUC.mu.Lock()
		defer briefUC.mu.Unlock()
		return briefUC.regenerates == 1
	})
}

func TestAutoRunGoesThroughClassifier(t *testing.T) {
	syncUC := &stubSyncUC{}
	briefUC := &stubBriefingUC{}
	o := testOrchestrator(syncUC, briefUC)
	defer o.Stop()

	o.Enqueue("u1", []string{"mail"}, syncdomain.TriggerAuto)
	waitFor(t, func() bool {
		briefUC.mu.Lock()
		defer briefUC.mu.Unlock()
		return briefUC.checks == 1 && briefUC.regenerates == 0
	})
}

func TestAutoIdempotencyKeyAlignsToBucket(t *testing.T) {
	syncUC := &stubSyncUC{}
	o := testOrchestrator(syncUC, &stubBriefingUC{})
	defer o.Stop()

	at := time.Date(2025, 3, 10, 9, 13, 42, 0, time.UTC)
	req := Request{Providers: []string{"mail"}, Trigger: syncdomain.TriggerAuto, EnqueuedAt: at}
	key1 := o.idempotencyKey("u1", "mail", req)

	req.EnqueuedAt = time.Date(2025, 3, 10, 9, 17, 1, 0, time.UTC)
	key2 := o.idempotencyKey("u1", "mail", req)

	if key1 != key2 {
		t.Fatalf("auto keys in the same cadence bucket must match: %q vs %q", key1, key2)
	}

	req.EnqueuedAt = time.Date(2025, 3, 10, 9, 21, 0, 0, time.UTC)
	if key3 := o.idempotencyKey("u1", "mail", req); key3 == key1 {
		t.Fatal("auto keys across buckets must differ")
	}
}
