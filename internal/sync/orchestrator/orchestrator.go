// Package orchestrator serializes sync runs per user: a FIFO queue with
// dedup coalescing, sequential execution, and a wall-clock-aligned auto-sync
// timer.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	briefusecase "daybrief-backend/internal/briefing/usecase"
	conndomain "daybrief-backend/internal/connection/domain"
	connrepo "daybrief-backend/internal/connection/repository"
	syncdomain "daybrief-backend/internal/sync/domain"
	syncusecase "daybrief-backend/internal/sync/usecase"
	"daybrief-backend/pkg/config"

	"github.com/robfig/cron/v3"
)

const queueCapacity = 16

// Notifier pushes sync progress to connected clients.
type Notifier interface {
	SendToUser(userID, event string, payload interface{})
}

// Request is one queued sync demand for a user.
type Request struct {
	Providers  []string
	Trigger    string
	EnqueuedAt time.Time
}

// providerKey is the canonical form of a provider set, used for dedup.
func providerKey(providers []string) string {
	sorted := make([]string, len(providers))
	copy(sorted, providers)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

type session struct {
	userID string
	queue  chan Request
	stop   chan struct{}

	mu          sync.Mutex
	lastKey     string
	lastEnqueue time.Time
}

// Orchestrator owns one session per active user and the shared timers.
type Orchestrator struct {
	cfg        *config.Config
	syncUC     syncusecase.SyncUsecase
	briefingUC briefusecase.BriefingUsecase
	connRepo   connrepo.ConnectionRepository
	notifier   Notifier

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
	cron     *cron.Cron

	now func() time.Time
}

func NewOrchestrator(
	cfg *config.Config,
	syncUC syncusecase.SyncUsecase,
	briefingUC briefusecase.BriefingUsecase,
	connRepo connrepo.ConnectionRepository,
	notifier Notifier,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		syncUC:     syncUC,
		briefingUC: briefingUC,
		connRepo:   connRepo,
		notifier:   notifier,
		sessions:   make(map[string]*session),
		now:        time.Now,
	}
}

// Start wires the background timers. The auto-sync schedule is aligned to
// the wall clock (cron, not a ticker), which is what makes the imminent
// window in the briefing classifier fire exactly once per event.
func (o *Orchestrator) Start() error {
	o.cron = cron.New()

	autoSpec := fmt.Sprintf("*/%d * * * *", o.cfg.AutoSyncMinutes)
	if _, err := o.cron.AddFunc(autoSpec, func() { o.enqueueAll(syncdomain.TriggerAuto) }); err != nil {
		return fmt.Errorf("failed to schedule auto-sync: %w", err)
	}
	// Day boundary: sync right at midnight so the rollover briefing does not
	// wait for the next cadence tick.
	if _, err := o.cron.AddFunc("0 0 * * *", func() { o.enqueueAll(syncdomain.TriggerDateBoundary) }); err != nil {
		return fmt.Errorf("failed to schedule date-boundary sync: %w", err)
	}
	if _, err := o.cron.AddFunc("17 3 * * *", func() {
		if err := o.syncUC.RetentionSweep(context.Background()); err != nil {
			log.Printf("[Orchestrator] Retention sweep failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}
	if _, err := o.cron.AddFunc("*/15 * * * *", func() {
		if err := o.syncUC.ReapStuckJobs(); err != nil {
			log.Printf("[Orchestrator] Stuck-job reap failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule stuck-job reap: %w", err)
	}

	o.cron.Start()
	log.Printf("[Orchestrator] Started, auto-sync every %d minutes on the wall clock", o.cfg.AutoSyncMinutes)
	return nil
}

// Stop halts the timers and drains every session.
func (o *Orchestrator) Stop() {
	if o.cron != nil {
		ctx := o.cron.Stop()
		<-ctx.Done()
	}

	o.mu.Lock()
	for _, s := range o.sessions {
		close(s.stop)
	}
	o.sessions = make(map[string]*session)
	o.mu.Unlock()

	o.wg.Wait()
}

// Enqueue appends a sync request to the user's FIFO queue. A request with an
// identical provider set inside the dedup window is coalesced into the one
// already queued.
func (o *Orchestrator) Enqueue(userID string, providers []string, trigger string) bool {
	if len(providers) == 0 {
		return false
	}
	s := o.sessionFor(userID)
	now := o.now()
	key := providerKey(providers)

	s.mu.Lock()
	if key == s.lastKey && now.Sub(s.lastEnqueue) < o.cfg.DedupWindow && trigger != syncdomain.TriggerDisconnect {
		s.mu.Unlock()
		log.Printf("[Orchestrator] Coalesced duplicate %s sync for user %s (%s)", trigger, userID, key)
		return false
	}
	s.lastKey = key
	s.lastEnqueue = now
	s.mu.Unlock()

	select {
	case s.queue <- Request{Providers: providers, Trigger: trigger, EnqueuedAt: now}:
		return true
	default:
		log.Printf("[Orchestrator] Queue full for user %s, dropping %s request", userID, trigger)
		return false
	}
}

func (o *Orchestrator) sessionFor(userID string) *session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.sessions[userID]; ok {
		return s
	}
	s := &session{
		userID: userID,
		queue:  make(chan Request, queueCapacity),
		stop:   make(chan struct{}),
	}
	o.sessions[userID] = s
	o.wg.Add(1)
	go o.runSession(s)
	return s
}

// runSession executes the user's requests strictly one at a time.
func (o *Orchestrator) runSession(s *session) {
	defer o.wg.Done()
	for {
		select {
		case req := <-s.queue:
			o.executeRun(s.userID, req)
		case <-s.stop:
			return
		}
	}
}

// executeRun fans out provider fetches in parallel inside the one run, then
// feeds the aggregated counts to the briefing classifier.
func (o *Orchestrator) executeRun(userID string, req Request) {
	ctx := context.Background()

	if o.notifier != nil {
		o.notifier.SendToUser(userID, "sync.started", map[string]interface{}{
			"providers": req.Providers,
			"trigger":   req.Trigger,
		})
	}

	var mu sync.Mutex
	var total syncdomain.RunStats
	var failures []string

	var wg sync.WaitGroup
	for _, p := range req.Providers {
		wg.Add(1)
		go func(providerName string) {
			defer wg.Done()
			key := o.idempotencyKey(userID, providerName, req)
			out, err := o.syncUC.RunSync(ctx, userID, providerName, req.Trigger, key)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("[Orchestrator] Sync failed for %s/%s: %v", userID, providerName, err)
				failures = append(failures, providerName)
				return
			}
			total.Fetched += out.Stats.Fetched
			total.Inserted += out.Stats.Inserted
			total.Updated += out.Stats.Updated
			total.Deleted += out.Stats.Deleted
		}(p)
	}
	wg.Wait()

	if o.notifier != nil {
		o.notifier.SendToUser(userID, "sync.finished", map[string]interface{}{
			"providers": req.Providers,
			"trigger":   req.Trigger,
			"stats":     total,
			"failures":  failures,
		})
	}

	o.maybeRegenerate(ctx, userID, req.Trigger, total)
}

// maybeRegenerate applies the regeneration-worthiness rule: explicit user
// actions always rebuild, auto runs only when the classifier says the data
// or the clock moved.
func (o *Orchestrator) maybeRegenerate(ctx context.Context, userID, trigger string, stats syncdomain.RunStats) {
	switch trigger {
	case syncdomain.TriggerConnect, syncdomain.TriggerDisconnect, syncdomain.TriggerManual:
		if _, err := o.briefingUC.Regenerate(ctx, userID, []string{reasonForTrigger(trigger)}); err != nil {
			log.Printf("[Orchestrator] Briefing regeneration failed for %s: %v", userID, err)
		}
	default:
		if _, err := o.briefingUC.CheckAndRegenerate(ctx, userID, stats); err != nil {
			log.Printf("[Orchestrator] Briefing check failed for %s: %v", userID, err)
		}
	}
}

func reasonForTrigger(trigger string) string {
	if trigger == syncdomain.TriggerManual {
		return "manual"
	}
	return trigger
}

// idempotencyKey makes duplicate triggers collapse onto one job. Auto runs
// key on the aligned cadence bucket, so a redelivered tick replays instead
// of re-fetching; user-driven runs key on their enqueue instant.
func (o *Orchestrator) idempotencyKey(userID, providerName string, req Request) string {
	if req.Trigger == syncdomain.TriggerAuto || req.Trigger == syncdomain.TriggerDateBoundary {
		bucket := req.EnqueuedAt.UTC().Truncate(time.Duration(o.cfg.AutoSyncMinutes) * time.Minute)
		return fmt.Sprintf("%s:%s:%s:%s", userID, providerName, req.Trigger, bucket.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s:%s:%s:%d", userID, providerName, req.Trigger, req.EnqueuedAt.UnixNano())
}

// enqueueAll enqueues a run with the given trigger for every user with at
// least one connected provider.
func (o *Orchestrator) enqueueAll(trigger string) {
	userIDs, err := o.connRepo.ListActiveUserIDs()
	if err != nil {
		log.Printf("[Orchestrator] Failed to list active users: %v", err)
		return
	}
	for _, userID := range userIDs {
		conns, err := o.connRepo.FindByUser(userID)
		if err != nil {
			log.Printf("[Orchestrator] Failed to load connections for %s: %v", userID, err)
			continue
		}
		var providers []string
		for _, c := range conns {
			if c.Status == conndomain.StatusConnected {
				providers = append(providers, c.Provider)
			}
		}
		if len(providers) > 0 {
			o.Enqueue(userID, providers, trigger)
		}
	}
}
