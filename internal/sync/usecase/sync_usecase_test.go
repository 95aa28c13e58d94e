package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	conndomain "daybrief-backend/internal/connection/domain"
	secusecase "daybrief-backend/internal/security/usecase"
	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/internal/sync/provider"
	"daybrief-backend/internal/sync/strategy"
	"daybrief-backend/pkg/config"
	"daybrief-backend/pkg/syncerr"
)

func testConfig() *config.Config {
	return &config.Config{
		SyncPageSize:          100,
		MailLookbackDays:      7,
		CalendarLookbackDays:  7,
		CalendarLookaheadDays: 30,
		DriveLookbackDays:     14,
		SyncMaxRetries:        2,
		SyncJobStaleAfter:     30 * time.Minute,
		RetentionDays:         90,
	}
}

type stubConnRepo struct {
	conn    *conndomain.Connection
	errored bool
	synced  bool
	token   *string
}

func (r *stubConnRepo) Upsert(conn *conndomain.Connection) error { r.conn = conn; return nil }
func (r *stubConnRepo) FindByUserAndProvider(userID, p string) (*conndomain.Connection, error) {
	if r.conn != nil && r.conn.UserID == userID && r.conn.Provider == p {
		return r.conn, nil
	}
	return nil, nil
}
func (r *stubConnRepo) FindByUser(userID string) ([]*conndomain.Connection, error) {
	if r.conn != nil && r.conn.UserID == userID {
		return []*conndomain.Connection{r.conn}, nil
	}
	return nil, nil
}
func (r *stubConnRepo) FindByExternalAccount(p, ext string) (*conndomain.Connection, error) {
	return nil, nil
}
func (r *stubConnRepo) RecordSyncSuccess(id string, syncedAt time.Time, syncToken *string) error {
	r.synced = true
	r.conn.LastSyncAt = &syncedAt
	if syncToken != nil {
		r.token = syncToken
		r.conn.SyncToken = syncToken
	}
	return nil
}
func (r *stubConnRepo) MarkError(id, message string) error {
	r.errored = true
	r.conn.Status = conndomain.StatusError
	r.conn.LastError = message
	return nil
}
func (r *stubConnRepo) UpdateTokens(id, at, rt string, exp time.Time) error { return nil }
func (r *stubConnRepo) Delete(id string) error                              { r.conn = nil; return nil }
func (r *stubConnRepo) ListActiveUserIDs() ([]string, error)                { return nil, nil }

type stubJobRepo struct {
	jobs map[string]*syncdomain.SyncJob
}

func newStubJobRepo() *stubJobRepo { return &stubJobRepo{jobs: make(map[string]*syncdomain.SyncJob)} }

func (r *stubJobRepo) Create(job *syncdomain.SyncJob) error {
	if job.ID == "" {
		job.ID = "job-" + job.IdempotencyKey
	}
	r.jobs[job.ID] = job
	return nil
}
func (r *stubJobRepo) FindByID(id string) (*syncdomain.SyncJob, error) { return r.jobs[id], nil }
func (r *stubJobRepo) FindByIdempotencyKey(key string) (*syncdomain.SyncJob, error) {
	for _, j := range r.jobs {
		if j.IdempotencyKey == key {
			return j, nil
		}
	}
	return nil, nil
}
func (r *stubJobRepo) UpdateStage(id, stage string) error {
	r.jobs[id].Status = stage
	return nil
}
func (r *stubJobRepo) SaveCheckpoint(id, pageToken string, fetched int) error {
	r.jobs[id].PageToken = pageToken
	r.jobs[id].ItemsFetched = fetched
	return nil
}
func (r *stubJobRepo) MarkComplete(id string, stats syncdomain.RunStats) error {
	j := r.jobs[id]
	j.Status = syncdomain.StageComplete
	j.ItemsFetched = stats.Fetched
	j.ItemsInserted = stats.Inserted
	j.ItemsUpdated = stats.Updated
	j.ItemsDeleted = stats.Deleted
	return nil
}
func (r *stubJobRepo) MarkError(id, message string, retryable bool) error {
	j := r.jobs[id]
	j.Status = syncdomain.StageError
	j.ErrorMessage = message
	j.ErrorRetryable = retryable
	return nil
}
func (r *stubJobRepo) FindStuck(d time.Duration) ([]*syncdomain.SyncJob, error)   { return nil, nil }
func (r *stubJobRepo) FindRecentByUser(userID string, limit int) ([]*syncdomain.SyncJob, error) {
	return nil, nil
}

type stubEmailRepo struct{ msgs []*syncdomain.EmailMessage }

func (r *stubEmailRepo) Upsert(m *syncdomain.EmailMessage) (bool, bool, error) {
	for _, e := range r.msgs {
		if e.UserID == m.UserID && e.NativeID == m.NativeID {
			changed := e.Subject != m.Subject || e.Body != m.Body
			e.Subject, e.Body, e.FromAddr = m.Subject, m.Body, m.FromAddr
			return false, changed, nil
		}
	}
	cp := *m
	r.msgs = append(r.msgs, &cp)
	return true, false, nil
}
func (r *stubEmailRepo) DeleteByNativeIDs(userID string, ids []string) (int64, error) {
	var n int64
	kept := r.msgs[:0]
	for _, m := range r.msgs {
		drop := false
		for _, id := range ids {
			if m.UserID == userID && m.NativeID == id {
				drop = true
			}
		}
		if drop {
			n++
		} else {
			kept = append(kept, m)
		}
	}
	r.msgs = kept
	return n, nil
}
func (r *stubEmailRepo) ListRecent(userID string, since time.Time, limit int) ([]*syncdomain.EmailMessage, error) {
	return r.msgs, nil
}
func (r *stubEmailRepo) DeleteOlderThan(cutoff time.Time) ([]syncdomain.RecordRef, error) {
	var refs []syncdomain.RecordRef
	kept := r.msgs[:0]
	for _, m := range r.msgs {
		if m.ReceivedAt.Before(cutoff) {
			refs = append(refs, syncdomain.RecordRef{UserID: m.UserID, NativeID: m.NativeID})
		} else {
			kept = append(kept, m)
		}
	}
	r.msgs = kept
	return refs, nil
}
func (r *stubEmailRepo) DeleteByUser(userID string) error { r.msgs = nil; return nil }

type stubEventRepo struct{ events []*syncdomain.CalendarEvent }

func (r *stubEventRepo) Upsert(ev *syncdomain.CalendarEvent) (bool, bool, error) {
	for _, e := range r.events {
		if e.UserID == ev.UserID && e.NativeID == ev.NativeID {
			changed := e.Title != ev.Title || !e.StartsAt.Equal(ev.StartsAt) || !e.EndsAt.Equal(ev.EndsAt)
			e.Title, e.StartsAt, e.EndsAt, e.AllDay = ev.Title, ev.StartsAt, ev.EndsAt, ev.AllDay
			*ev = *e
			return false, changed, nil
		}
	}
	if ev.ID == "" {
		ev.ID = "ev-" + ev.NativeID
	}
	cp := *ev
	r.events = append(r.events, &cp)
	return true, false, nil
}
func (r *stubEventRepo) DeleteByNativeIDs(userID string, ids []string) (int64, error) {
	var n int64
	kept := r.events[:0]
	for _, e := range r.events {
		drop := false
		for _, id := range ids {
			if e.UserID == userID && e.NativeID == id {
				drop = true
			}
		}
		if drop {
			n++
		} else {
			kept = append(kept, e)
		}
	}
	r.events = kept
	return n, nil
}
func (r *stubEventRepo) ListInWindow(userID string, from, to time.Time) ([]*syncdomain.CalendarEvent, error) {
	return r.events, nil
}
func (r *stubEventRepo) UpdateConflicts(userID string, conflicts map[string][]string) error {
	for _, e := range r.events {
		with := conflicts[e.NativeID]
		e.HasConflict = len(with) > 0
		e.ConflictWith = with
	}
	return nil
}
func (r *stubEventRepo) DeleteOlderThan(cutoff time.Time) ([]syncdomain.RecordRef, error) {
	var refs []syncdomain.RecordRef
	kept := r.events[:0]
	for _, e := range r.events {
		if e.EndsAt.Before(cutoff) {
			refs = append(refs, syncdomain.RecordRef{UserID: e.UserID, NativeID: e.NativeID})
		} else {
			kept = append(kept, e)
		}
	}
	r.events = kept
	return refs, nil
}
func (r *stubEventRepo) DeleteByUser(userID string) error { r.events = nil; return nil }

type stubDocRepo struct{ docs []*syncdomain.Document }

func (r *stubDocRepo) Upsert(d *syncdomain.Document) (bool, bool, error) {
	cp := *d
	r.docs = append(r.docs, &cp)
	return true, false, nil
}
func (r *stubDocRepo) DeleteByNativeIDs(userID string, ids []string) (int64, error) { return 0, nil }
func (r *stubDocRepo) ListRecent(userID string, since time.Time, limit int) ([]*syncdomain.Document, error) {
	return r.docs, nil
}
func (r *stubDocRepo) DeleteOlderThan(cutoff time.Time) ([]syncdomain.RecordRef, error) {
	var refs []syncdomain.RecordRef
	kept := r.docs[:0]
	for _, d := range r.docs {
		if d.ModifiedAt.Before(cutoff) {
			refs = append(refs, syncdomain.RecordRef{UserID: d.UserID, NativeID: d.NativeID})
		} else {
			kept = append(kept, d)
		}
	}
	r.docs = kept
	return refs, nil
}
func (r *stubDocRepo) DeleteByUser(userID string) error { r.docs = nil; return nil }

// passGate lets everything through unredacted.
type passGate struct {
	purged       bool
	expiredAfter *time.Time
}

func (g *passGate) RedactItems(_ context.Context, _ string, items []syncdomain.Item, _ secusecase.Policy) ([]syncdomain.Item, error) {
	return items, nil
}
func (g *passGate) RedactTexts(_ context.Context, _ string, texts []string, _ secusecase.Policy) ([]string, error) {
	return texts, nil
}
func (g *passGate) Reveal(userID, token string) (string, error) { return "", nil }
func (g *passGate) PurgeUser(userID string) error               { g.purged = true; return nil }
func (g *passGate) PurgeExpired(cutoff time.Time) error         { g.expiredAfter = &cutoff; return nil }

type stubClient struct {
	pages      []*provider.Page
	err        error
	errOnce    bool
	calls      int
	plans      []strategy.FetchPlan
	pageTokens []string
}

func (c *stubClient) FetchPage(_ context.Context, _ *conndomain.Connection, plan strategy.FetchPlan, pageToken string, _ provider.TokenUpdateFunc) (*provider.Page, error) {
	c.calls++
	c.plans = append(c.plans, plan)
	c.pageTokens = append(c.pageTokens, pageToken)
	if c.err != nil {
		err := c.err
		if c.errOnce {
			c.err = nil
		}
		return nil, err
	}
	idx := 0
	if pageToken != "" {
		idx = len(c.pages) - 1 // single continuation in these tests
	}
	return c.pages[idx], nil
}

type nopEmbedder struct {
	upserts int
	deleted []string
}

func (e *nopEmbedder) UpsertRecordEmbedding(_ context.Context, _, _, _, _, _ string) error {
	e.upserts++
	return nil
}
func (e *nopEmbedder) DeleteRecordEmbedding(_ context.Context, _, nativeID string) error {
	e.deleted = append(e.deleted, nativeID)
	return nil
}
func (e *nopEmbedder) DeleteUserEmbeddings(_ context.Context, _ string) error { return nil }

func calendarConn(userID string) *conndomain.Connection {
	return &conndomain.Connection{
		ID:       "conn-1",
		UserID:   userID,
		Provider: conndomain.ProviderCalendar,
		Status:   conndomain.StatusConnected,
	}
}

func newTestUsecase(conn *conndomain.Connection, client provider.Client) (SyncUsecase, *stubJobRepo, *stubConnRepo, *stubEventRepo, *stubClient) {
	cfg := testConfig()
	connRepo := &stubConnRepo{conn: conn}
	jobRepo := newStubJobRepo()
	eventRepo := &stubEventRepo{}
	registry := provider.NewRegistry()
	registry.Register(conn.Provider, conndomain.TransportGoogle, client)

	uc := NewSyncUsecase(cfg, connRepo, jobRepo, &stubEmailRepo{}, eventRepo, &stubDocRepo{},
		registry, strategy.NewSelector(cfg), &passGate{}, &nopEmbedder{})
	return uc, jobRepo, connRepo, eventRepo, client.(*stubClient)
}

func TestRunSyncIdempotentReplay(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	client := &stubClient{pages: []*provider.Page{{
		Items: []syncdomain.Item{
			{NativeID: "n1", Kind: syncdomain.KindEvent, Title: "standup", StartsAt: base, EndsAt: base.Add(30 * time.Minute)},
		},
		NextSyncToken: "tok-1",
	}}}
	uc, _, connRepo, eventRepo, _ := newTestUsecase(calendarConn("u1"), client)

	first, err := uc.RunSync(context.Background(), "u1", conndomain.ProviderCalendar, syncdomain.TriggerConnect, "key-1")
	if err != nil {
		t.Fatalf("first RunSync: %v", err)
	}
	if first.Replayed {
		t.Fatal("first run must not be a replay")
	}
	if first.Stats.Inserted != 1 {
		t.Fatalf("expected 1 insert, got %+v", first.Stats)
	}
	callsAfterFirst := client.calls

	second, err := uc.RunSync(context.Background(), "u1", conndomain.ProviderCalendar, syncdomain.TriggerConnect, "key-1")
	if err != nil {
		t.Fatalf("second RunSync: %v", err)
	}
	if !second.Replayed {
		t.Fatal("second run with the same key must replay")
	}
	if second.Stats != first.Stats {
		t.Fatalf("replayed stats differ: %+v vs %+v", second.Stats, first.Stats)
	}
	if client.calls != callsAfterFirst {
		t.Fatalf("replay must not call the provider, calls went %d -> %d", callsAfterFirst, client.calls)
	}
	if len(eventRepo.events) != 1 {
		t.Fatalf("stored state changed on replay: %d events", len(eventRepo.events))
	}
	if connRepo.token == nil || *connRepo.token != "tok-1" {
		t.Fatalf("sync token not recorded: %v", connRepo.token)
	}
}

func TestRunSyncDetectsConflicts(t *testing.T) {
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	client := &stubClient{pages: []*provider.Page{{
		Items: []syncdomain.Item{
			{NativeID: "a", Kind: syncdomain.KindEvent, Title: "design review", StartsAt: base, EndsAt: base.Add(time.Hour)},
			{NativeID: "b", Kind: syncdomain.KindEvent, Title: "1:1", StartsAt: base.Add(30 * time.Minute), EndsAt: base.Add(90 * time.Minute)},
			{NativeID: "c", Kind: syncdomain.KindEvent, Title: "lunch", StartsAt: base.Add(2 * time.Hour), EndsAt: base.Add(3 * time.Hour)},
		},
	}}}
	uc, _, _, eventRepo, _ := newTestUsecase(calendarConn("u1"), client)

	if _, err := uc.RunSync(context.Background(), "u1", conndomain.ProviderCalendar, syncdomain.TriggerManual, "key-2"); err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	byNative := map[string]*syncdomain.CalendarEvent{}
	for _, ev := range eventRepo.events {
		byNative[ev.NativeID] = ev
	}
	if !byNative["a"].HasConflict || !byNative["b"].HasConflict {
		t.Fatalf("overlapping events must both be flagged: a=%v b=%v", byNative["a"].HasConflict, byNative["b"].HasConflict)
	}
	if byNative["c"].HasConflict {
		t.Fatal("non-overlapping event must not be flagged")
	}
	// Edges carry the provider-native id of the other event, never the
	// internal row id.
	if len(byNative["a"].ConflictWith) != 1 || byNative["a"].ConflictWith[0] != "b" {
		t.Fatalf("conflict edge must hold the native id %q, got %v", "b", byNative["a"].ConflictWith)
	}
	if len(byNative["b"].ConflictWith) != 1 || byNative["b"].ConflictWith[0] != "a" {
		t.Fatalf("conflict edge must hold the native id %q, got %v", "a", byNative["b"].ConflictWith)
	}
}

func TestRunSyncAuthFailureFlagsConnection(t *testing.T) {
	client := &stubClient{err: syncerr.FromStatus(401, 0, errors.New("invalid credentials"))}
	uc, jobRepo, connRepo, _, _ := newTestUsecase(calendarConn("u1"), client)

	if _, err := uc.RunSync(context.Background(), "u1", conndomain.ProviderCalendar, syncdomain.TriggerAuto, "key-3"); err == nil {
		t.Fatal("expected auth failure")
	}
	if !connRepo.errored || connRepo.conn.Status != conndomain.StatusError {
		t.Fatal("auth failure must flip the connection to error")
	}
	job, _ := jobRepo.FindByIdempotencyKey("key-3")
	if job.Status != syncdomain.StageError || job.ErrorRetryable {
		t.Fatalf("job must record a non-retryable error, got %+v", job)
	}
}

func TestRunSyncFallsBackOnExpiredToken(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	client := &stubClient{
		err:     syncerr.ErrSyncTokenExpired,
		errOnce: true,
		pages: []*provider.Page{{
			Items: []syncdomain.Item{
				{NativeID: "n1", Kind: syncdomain.KindEvent, Title: "standup", StartsAt: base, EndsAt: base.Add(30 * time.Minute)},
			},
			NextSyncToken: "tok-fresh",
		}},
	}
	conn := calendarConn("u1")
	last := base.Add(-24 * time.Hour)
	stale := "tok-stale"
	conn.LastSyncAt = &last
	conn.SyncToken = &stale

	uc, _, connRepo, _, _ := newTestUsecase(conn, client)

	out, err := uc.RunSync(context.Background(), "u1", conndomain.ProviderCalendar, syncdomain.TriggerAuto, "key-4")
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if out.Stats.Inserted != 1 {
		t.Fatalf("fallback fetch must still land items, got %+v", out.Stats)
	}
	if client.plans[0].Mode != strategy.ModeDelta || client.plans[1].Mode != strategy.ModeInitial {
		t.Fatalf("expected delta then windowed fallback, got %v then %v", client.plans[0].Mode, client.plans[1].Mode)
	}
	if connRepo.token == nil || *connRepo.token != "tok-fresh" {
		t.Fatalf("fresh token not recorded after fallback: %v", connRepo.token)
	}
}

func TestRunSyncRefusesPermanentlyFailedKey(t *testing.T) {
	client := &stubClient{err: syncerr.FromStatus(400, 0, errors.New("bad request"))}
	uc, jobRepo, _, _, _ := newTestUsecase(calendarConn("u1"), client)

	if _, err := uc.RunSync(context.Background(), "u1", conndomain.ProviderCalendar, syncdomain.TriggerAuto, "key-5"); err == nil {
		t.Fatal("expected client error")
	}
	job, _ := jobRepo.FindByIdempotencyKey("key-5")
	if job.ErrorRetryable {
		t.Fatal("4xx must be non-retryable")
	}

	if _, err := uc.RunSync(context.Background(), "u1", conndomain.ProviderCalendar, syncdomain.TriggerAuto, "key-5"); err == nil {
		t.Fatal("redelivery of a permanently failed key must not re-execute")
	}
	if client.calls != 1 {
		t.Fatalf("permanently failed key re-executed: %d calls", client.calls)
	}
}

func TestRunSyncReExecutesRetryableErrorFromCheckpoint(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	client := &stubClient{pages: []*provider.Page{{
		Items: []syncdomain.Item{
			{NativeID: "n1", Kind: syncdomain.KindEvent, Title: "standup", StartsAt: base, EndsAt: base.Add(30 * time.Minute)},
		},
	}}}
	uc, jobRepo, _, _, _ := newTestUsecase(calendarConn("u1"), client)

	// A job that died retryably mid-fetch, with a page cursor already
	// persisted.
	jobRepo.jobs["job-1"] = &syncdomain.SyncJob{
		ID:             "job-1",
		UserID:         "u1",
		Provider:       conndomain.ProviderCalendar,
		Trigger:        syncdomain.TriggerAuto,
		IdempotencyKey: "key-6",
		Status:         syncdomain.StageError,
		ErrorRetryable: true,
		PageToken:      "3",
		StartedAt:      base,
	}

	out, err := uc.RunSync(context.Background(), "u1", conndomain.ProviderCalendar, syncdomain.TriggerAuto, "key-6")
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if out.Replayed {
		t.Fatal("re-execution of an errored job is not a replay")
	}
	if len(client.pageTokens) == 0 || client.pageTokens[0] != "3" {
		t.Fatalf("fetch must resume from the persisted page cursor, got %v", client.pageTokens)
	}
	if jobRepo.jobs["job-1"].Status != syncdomain.StageComplete {
		t.Fatalf("job must finish after re-execution, got stage %s", jobRepo.jobs["job-1"].Status)
	}
}

func TestRetentionSweepPurgesDerivedState(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -(cfg.RetentionDays + 30))

	emailRepo := &stubEmailRepo{msgs: []*syncdomain.EmailMessage{
		{UserID: "u1", NativeID: "m-old", ReceivedAt: old},
		{UserID: "u1", NativeID: "m-new", ReceivedAt: now.Add(-time.Hour)},
	}}
	eventRepo := &stubEventRepo{events: []*syncdomain.CalendarEvent{
		{UserID: "u1", NativeID: "e-old", EndsAt: old},
	}}
	docRepo := &stubDocRepo{docs: []*syncdomain.Document{
		{UserID: "u1", NativeID: "d-old", ModifiedAt: old},
	}}
	gate := &passGate{}
	embedder := &nopEmbedder{}

	uc := NewSyncUsecase(cfg, &stubConnRepo{}, newStubJobRepo(), emailRepo, eventRepo, docRepo,
		provider.NewRegistry(), strategy.NewSelector(cfg), gate, embedder).(*syncUsecase)
	uc.now = func() time.Time { return now }

	if err := uc.RetentionSweep(context.Background()); err != nil {
		t.Fatalf("RetentionSweep: %v", err)
	}

	if len(emailRepo.msgs) != 1 || emailRepo.msgs[0].NativeID != "m-new" {
		t.Fatalf("only expired messages may be swept: %d left", len(emailRepo.msgs))
	}

	swept := map[string]bool{}
	for _, id := range embedder.deleted {
		swept[id] = true
	}
	for _, want := range []string{"m-old", "e-old", "d-old"} {
		if !swept[want] {
			t.Fatalf("embedding for swept record %s not deleted: %v", want, embedder.deleted)
		}
	}
	if swept["m-new"] {
		t.Fatal("embedding of a retained record must survive the sweep")
	}

	cutoff := now.AddDate(0, 0, -cfg.RetentionDays)
	if gate.expiredAfter == nil || !gate.expiredAfter.Equal(cutoff) {
		t.Fatalf("vault must be purged at the retention cutoff, got %v", gate.expiredAfter)
	}
}
