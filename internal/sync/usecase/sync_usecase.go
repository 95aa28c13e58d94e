package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	conndomain "daybrief-backend/internal/connection/domain"
	connrepo "daybrief-backend/internal/connection/repository"
	secusecase "daybrief-backend/internal/security/usecase"
	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/internal/sync/provider"
	syncrepo "daybrief-backend/internal/sync/repository"
	"daybrief-backend/internal/sync/strategy"
	"daybrief-backend/pkg/config"
	"daybrief-backend/pkg/overlap"
	"daybrief-backend/pkg/syncerr"

	"golang.org/x/oauth2"
)

// syncUsecase implements SyncUsecase interface
type syncUsecase struct {
	cfg       *config.Config
	connRepo  connrepo.ConnectionRepository
	jobRepo   syncrepo.SyncJobRepository
	emailRepo syncrepo.EmailRepository
	eventRepo syncrepo.EventRepository
	docRepo   syncrepo.DocumentRepository
	registry  *provider.Registry
	selector  *strategy.Selector
	gate      secusecase.DLPGate
	embedder  Embedder

	now func() time.Time
}

// NewSyncUsecase creates a new instance of syncUsecase
func NewSyncUsecase(
	cfg *config.Config,
	connRepo connrepo.ConnectionRepository,
	jobRepo syncrepo.SyncJobRepository,
	emailRepo syncrepo.EmailRepository,
	eventRepo syncrepo.EventRepository,
	docRepo syncrepo.DocumentRepository,
	registry *provider.Registry,
	selector *strategy.Selector,
	gate secusecase.DLPGate,
	embedder Embedder,
) SyncUsecase {
	return &syncUsecase{
		cfg:       cfg,
		connRepo:  connRepo,
		jobRepo:   jobRepo,
		emailRepo: emailRepo,
		eventRepo: eventRepo,
		docRepo:   docRepo,
		registry:  registry,
		selector:  selector,
		gate:      gate,
		embedder:  embedder,
		now:       time.Now,
	}
}

func (u *syncUsecase) RunSync(ctx context.Context, userID, providerName, trigger, idempotencyKey string) (*syncdomain.SyncOutcome, error) {
	job, err := u.jobRepo.FindByIdempotencyKey(idempotencyKey)
	if err != nil {
		return nil, err
	}

	if job != nil && job.Status == syncdomain.StageComplete {
		// Cached outcome: the work already happened, replay the counts.
		return &syncdomain.SyncOutcome{
			JobID:    job.ID,
			Provider: job.Provider,
			Trigger:  job.Trigger,
			Stats: syncdomain.RunStats{
				Fetched:  job.ItemsFetched,
				Inserted: job.ItemsInserted,
				Updated:  job.ItemsUpdated,
				Deleted:  job.ItemsDeleted,
			},
			Replayed: true,
		}, nil
	}

	if job != nil && job.Status == syncdomain.StageError {
		if !job.ErrorRetryable {
			return nil, fmt.Errorf("sync job %s failed permanently: %s", job.ID, job.ErrorMessage)
		}
		// Retryable failure on an at-least-once redelivery: run the job
		// again from its checkpoint.
	}

	if job == nil {
		job = &syncdomain.SyncJob{
			UserID:         userID,
			Provider:       providerName,
			Trigger:        trigger,
			IdempotencyKey: idempotencyKey,
			Status:         syncdomain.StageQueued,
			StartedAt:      u.now(),
		}
		if err := u.jobRepo.Create(job); err != nil {
			return nil, fmt.Errorf("failed to create sync job: %w", err)
		}
	}

	stats, runErr := u.execute(ctx, job)
	if runErr != nil {
		retryable := syncerr.IsRetryable(runErr)
		if markErr := u.jobRepo.MarkError(job.ID, runErr.Error(), retryable); markErr != nil {
			log.Printf("[Sync] Failed to mark job %s as errored: %v", job.ID, markErr)
		}
		return nil, runErr
	}

	if err := u.jobRepo.MarkComplete(job.ID, stats); err != nil {
		return nil, fmt.Errorf("failed to complete sync job: %w", err)
	}
	return &syncdomain.SyncOutcome{
		JobID:    job.ID,
		Provider: job.Provider,
		Trigger:  job.Trigger,
		Stats:    stats,
	}, nil
}

// execute drives the job through its stages. Every transition is written
// before the stage body runs; a redelivered job re-enters at its persisted
// stage. Stages before embedding hold their items in memory, so re-entry
// there restarts the fetch from the page checkpoint; embedding and analyzing
// re-derive their input from the store.
func (u *syncUsecase) execute(ctx context.Context, job *syncdomain.SyncJob) (syncdomain.RunStats, error) {
	var stats syncdomain.RunStats

	conn, err := u.connRepo.FindByUserAndProvider(job.UserID, job.Provider)
	if err != nil {
		return stats, err
	}
	if conn == nil || conn.Status == conndomain.StatusDisconnected {
		return stats, fmt.Errorf("no active %s connection for user", job.Provider)
	}

	resumeAt := syncdomain.StageOrder[job.Status]
	if resumeAt < syncdomain.StageOrder[syncdomain.StageEmbedding] {
		// Items from earlier stages live in memory only; restart the fetch
		// from the page checkpoint.
		if err := u.transition(job, syncdomain.StageFetching); err != nil {
			return stats, err
		}
		items, syncToken, fetchErr := u.fetchAll(ctx, job, conn)
		if fetchErr != nil {
			u.flagConnOnAuthFailure(conn, fetchErr)
			return stats, fetchErr
		}
		stats.Fetched = len(items)

		if err := u.transition(job, syncdomain.StageSecuring); err != nil {
			return stats, err
		}
		secured, err := u.gate.RedactItems(ctx, job.UserID, items, secusecase.FailClosed)
		if err != nil {
			return stats, err
		}

		if err := u.transition(job, syncdomain.StagePersisting); err != nil {
			return stats, err
		}
		if err := u.persist(job.UserID, secured, &stats); err != nil {
			return stats, err
		}

		if err := u.transition(job, syncdomain.StageEmbedding); err != nil {
			return stats, err
		}
		if err := u.embed(ctx, job, secured); err != nil {
			return stats, err
		}

		if job.Provider == conndomain.ProviderCalendar {
			if err := u.transition(job, syncdomain.StageAnalyzing); err != nil {
				return stats, err
			}
			if err := u.analyzeConflicts(job.UserID); err != nil {
				return stats, err
			}
		}

		// The connection checkpoint only advances once the whole run held.
		var tokenPtr *string
		if syncToken != "" {
			tokenPtr = &syncToken
		}
		if err := u.connRepo.RecordSyncSuccess(conn.ID, job.StartedAt, tokenPtr); err != nil {
			return stats, err
		}
		return stats, nil
	}

	// Redelivered past persisting: records are durable, finish the tail
	// stages from the store.
	stats = syncdomain.RunStats{Fetched: job.ItemsFetched}
	if resumeAt <= syncdomain.StageOrder[syncdomain.StageEmbedding] {
		if err := u.transition(job, syncdomain.StageEmbedding); err != nil {
			return stats, err
		}
		if err := u.embedFromStore(ctx, job); err != nil {
			return stats, err
		}
	}
	if job.Provider == conndomain.ProviderCalendar {
		if err := u.transition(job, syncdomain.StageAnalyzing); err != nil {
			return stats, err
		}
		if err := u.analyzeConflicts(job.UserID); err != nil {
			return stats, err
		}
	}
	if err := u.connRepo.RecordSyncSuccess(conn.ID, job.StartedAt, nil); err != nil {
		return stats, err
	}
	return stats, nil
}

func (u *syncUsecase) transition(job *syncdomain.SyncJob, stage string) error {
	if err := u.jobRepo.UpdateStage(job.ID, stage); err != nil {
		return fmt.Errorf("failed to checkpoint stage %s: %w", stage, err)
	}
	job.Status = stage
	return nil
}

// fetchAll pages through the provider until exhaustion, checkpointing the
// cursor after every page. An expired delta token on the first page swaps
// the plan for a full windowed fallback.
func (u *syncUsecase) fetchAll(ctx context.Context, job *syncdomain.SyncJob, conn *conndomain.Connection) ([]syncdomain.Item, string, error) {
	client := u.registry.For(conn)
	if client == nil {
		return nil, "", fmt.Errorf("no provider client for %s/%s", conn.Provider, conn.Transport)
	}

	plan := u.selector.Plan(conn, u.now())
	onRefresh := u.tokenPersister(conn)

	var items []syncdomain.Item
	var syncToken string
	pageToken := job.PageToken
	firstPage := true

	for {
		page, err := u.fetchPage(ctx, client, conn, plan, pageToken, onRefresh)
		if err != nil {
			if firstPage && errors.Is(err, syncerr.ErrSyncTokenExpired) {
				log.Printf("[Sync] Delta token expired for %s/%s, falling back to windowed fetch", job.UserID, job.Provider)
				plan = u.selector.FallbackPlan(conn.Provider, u.now())
				firstPage = false
				continue
			}
			return nil, "", err
		}
		firstPage = false

		items = append(items, page.Items...)
		if page.NextSyncToken != "" {
			syncToken = page.NextSyncToken
		}

		pageToken = page.NextPageToken
		if err := u.jobRepo.SaveCheckpoint(job.ID, pageToken, len(items)); err != nil {
			return nil, "", err
		}
		if pageToken == "" {
			return items, syncToken, nil
		}
	}
}

// fetchPage retries transient failures with exponential backoff, honoring a
// retry-after hint when the provider sends one.
func (u *syncUsecase) fetchPage(ctx context.Context, client provider.Client, conn *conndomain.Connection, plan strategy.FetchPlan, pageToken string, onRefresh provider.TokenUpdateFunc) (*provider.Page, error) {
	backoff := time.Second

	for attempt := 0; ; attempt++ {
		page, err := client.FetchPage(ctx, conn, plan, pageToken, onRefresh)
		if err == nil {
			return page, nil
		}
		if errors.Is(err, syncerr.ErrSyncTokenExpired) {
			return nil, err
		}
		if !syncerr.IsRetryable(err) || attempt >= u.cfg.SyncMaxRetries {
			return nil, err
		}

		delay := backoff
		if hint := syncerr.RetryAfter(err); hint > 0 {
			delay = hint
		}
		log.Printf("[Sync] Page fetch failed for %s (attempt %d/%d), retrying in %s: %v", plan.Provider, attempt+1, u.cfg.SyncMaxRetries, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
}

func (u *syncUsecase) tokenPersister(conn *conndomain.Connection) provider.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		conn.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			conn.RefreshToken = token.RefreshToken
		}
		conn.TokenExpiry = token.Expiry
		return u.connRepo.UpdateTokens(conn.ID, token.AccessToken, token.RefreshToken, token.Expiry)
	}
}

// flagConnOnAuthFailure flips the connection to error for non-retryable auth
// failures only; transient failures leave it connected.
func (u *syncUsecase) flagConnOnAuthFailure(conn *conndomain.Connection, err error) {
	var se *syncerr.Error
	if errors.As(err, &se) && se.Kind == syncerr.KindAuth {
		if markErr := u.connRepo.MarkError(conn.ID, err.Error()); markErr != nil {
			log.Printf("[Sync] Failed to flag connection %s: %v", conn.ID, markErr)
		}
	}
}

// persist upserts by (user, native id), counting inserts and updates
// explicitly; a refetched-but-identical record counts as neither.
func (u *syncUsecase) persist(userID string, items []syncdomain.Item, stats *syncdomain.RunStats) error {
	var deletions []string
	for i := range items {
		item := &items[i]
		if item.Deleted {
			deletions = append(deletions, item.NativeID)
			continue
		}

		var created, changed bool
		var err error
		switch item.Kind {
		case syncdomain.KindEmail:
			created, changed, err = u.emailRepo.Upsert(&syncdomain.EmailMessage{
				UserID:     userID,
				NativeID:   item.NativeID,
				Subject:    item.Subject,
				FromAddr:   item.FromAddr,
				Body:       item.Body,
				ReceivedAt: item.ReceivedAt,
			})
		case syncdomain.KindEvent:
			created, changed, err = u.eventRepo.Upsert(&syncdomain.CalendarEvent{
				UserID:   userID,
				NativeID: item.NativeID,
				Title:    item.Title,
				StartsAt: item.StartsAt,
				EndsAt:   item.EndsAt,
				AllDay:   item.AllDay,
			})
		case syncdomain.KindDocument:
			created, changed, err = u.docRepo.Upsert(&syncdomain.Document{
				UserID:     userID,
				NativeID:   item.NativeID,
				Name:       item.Name,
				MimeType:   item.MimeType,
				ModifiedAt: item.ModifiedAt,
			})
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to persist %s %s: %w", item.Kind, item.NativeID, err)
		}
		if created {
			stats.Inserted++
		} else if changed {
			stats.Updated++
		}
	}

	if len(deletions) > 0 {
		var n int64
		var err error
		switch items[0].Kind {
		case syncdomain.KindEmail:
			n, err = u.emailRepo.DeleteByNativeIDs(userID, deletions)
		case syncdomain.KindEvent:
			n, err = u.eventRepo.DeleteByNativeIDs(userID, deletions)
		case syncdomain.KindDocument:
			n, err = u.docRepo.DeleteByNativeIDs(userID, deletions)
		}
		if err != nil {
			return err
		}
		stats.Deleted += int(n)
	}
	return nil
}

// embed pushes this run's items into the vector store. Embedding failures
// degrade to a log line: search quality suffers but the mirror stays intact.
func (u *syncUsecase) embed(ctx context.Context, job *syncdomain.SyncJob, items []syncdomain.Item) error {
	if u.embedder == nil {
		return nil
	}
	for i := range items {
		item := &items[i]
		if item.Deleted {
			if err := u.embedder.DeleteRecordEmbedding(ctx, job.UserID, item.NativeID); err != nil {
				log.Printf("[Sync] Failed to delete embedding %s: %v", item.NativeID, err)
			}
			continue
		}
		title, body := embeddingText(item)
		if title == "" && body == "" {
			continue
		}
		if err := u.embedder.UpsertRecordEmbedding(ctx, job.UserID, job.Provider, item.NativeID, title, body); err != nil {
			log.Printf("[Sync] Failed to embed %s %s: %v", item.Kind, item.NativeID, err)
		}
	}
	return nil
}

// embedFromStore re-embeds records touched by this job, used when a
// redelivered job re-enters at the embedding stage without its in-memory
// batch.
func (u *syncUsecase) embedFromStore(ctx context.Context, job *syncdomain.SyncJob) error {
	if u.embedder == nil {
		return nil
	}
	since := job.StartedAt.Add(-time.Minute)
	switch job.Provider {
	case conndomain.ProviderMail:
		msgs, err := u.emailRepo.ListRecent(job.UserID, since, u.cfg.SyncPageSize)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if err := u.embedder.UpsertRecordEmbedding(ctx, job.UserID, job.Provider, m.NativeID, m.Subject, m.Body); err != nil {
				log.Printf("[Sync] Failed to embed email %s: %v", m.NativeID, err)
			}
		}
	case conndomain.ProviderCalendar:
		events, err := u.eventRepo.ListInWindow(job.UserID, u.now().AddDate(0, 0, -u.cfg.CalendarLookbackDays), u.now().AddDate(0, 0, u.cfg.CalendarLookaheadDays))
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := u.embedder.UpsertRecordEmbedding(ctx, job.UserID, job.Provider, ev.NativeID, ev.Title, ""); err != nil {
				log.Printf("[Sync] Failed to embed event %s: %v", ev.NativeID, err)
			}
		}
	case conndomain.ProviderDrive:
		docs, err := u.docRepo.ListRecent(job.UserID, since, u.cfg.SyncPageSize)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := u.embedder.UpsertRecordEmbedding(ctx, job.UserID, job.Provider, d.NativeID, d.Name, ""); err != nil {
				log.Printf("[Sync] Failed to embed document %s: %v", d.NativeID, err)
			}
		}
	}
	return nil
}

// analyzeConflicts recomputes pairwise overlap over the user's stored
// events and rewrites the conflict edges, keyed by provider-native event
// id. All-day events span their whole days; zero-duration entries never
// conflict.
func (u *syncUsecase) analyzeConflicts(userID string) error {
	now := u.now()
	events, err := u.eventRepo.ListInWindow(userID,
		now.AddDate(0, 0, -u.cfg.CalendarLookbackDays),
		now.AddDate(0, 0, u.cfg.CalendarLookaheadDays))
	if err != nil {
		return err
	}

	intervals := make([]overlap.Interval, 0, len(events))
	for _, ev := range events {
		start, end := ev.StartsAt, ev.EndsAt
		if ev.AllDay {
			// Stored end is the inclusive last day; the occupied interval
			// runs through that day's midnight.
			start = start.UTC().Truncate(24 * time.Hour)
			end = end.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		}
		intervals = append(intervals, overlap.Interval{ID: ev.NativeID, Start: start, End: end})
	}

	conflicts := overlap.Detect(intervals)
	return u.eventRepo.UpdateConflicts(userID, conflicts)
}

func embeddingText(item *syncdomain.Item) (string, string) {
	switch item.Kind {
	case syncdomain.KindEmail:
		return item.Subject, item.Body
	case syncdomain.KindEvent:
		return item.Title, ""
	case syncdomain.KindDocument:
		return item.Name, ""
	}
	return "", ""
}

func (u *syncUsecase) Disconnect(ctx context.Context, userID, providerName string) error {
	conn, err := u.connRepo.FindByUserAndProvider(userID, providerName)
	if err != nil {
		return err
	}
	if conn == nil {
		return nil
	}

	switch providerName {
	case conndomain.ProviderMail:
		err = u.emailRepo.DeleteByUser(userID)
	case conndomain.ProviderCalendar:
		err = u.eventRepo.DeleteByUser(userID)
	case conndomain.ProviderDrive:
		err = u.docRepo.DeleteByUser(userID)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s records: %w", providerName, err)
	}

	if err := u.connRepo.Delete(conn.ID); err != nil {
		return err
	}

	remaining, err := u.connRepo.FindByUser(userID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		// Last provider gone: nothing redacted remains, drop the vault and
		// the vector index with it.
		if err := u.gate.PurgeUser(userID); err != nil {
			log.Printf("[Sync] Failed to purge vault for user %s: %v", userID, err)
		}
		if u.embedder != nil {
			if err := u.embedder.DeleteUserEmbeddings(ctx, userID); err != nil {
				log.Printf("[Sync] Failed to purge embeddings for user %s: %v", userID, err)
			}
		}
	}
	return nil
}

// RetentionSweep deletes records past the retention horizon along with the
// state derived from them: their vector-store embeddings and vault entries
// older than the same cutoff.
func (u *syncUsecase) RetentionSweep(ctx context.Context) error {
	cutoff := u.now().AddDate(0, 0, -u.cfg.RetentionDays)

	emails, err := u.emailRepo.DeleteOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("retention sweep (emails): %w", err)
	}
	events, err := u.eventRepo.DeleteOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("retention sweep (events): %w", err)
	}
	docs, err := u.docRepo.DeleteOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("retention sweep (documents): %w", err)
	}

	swept := len(emails) + len(events) + len(docs)
	if u.embedder != nil {
		for _, refs := range [][]syncdomain.RecordRef{emails, events, docs} {
			for _, ref := range refs {
				if err := u.embedder.DeleteRecordEmbedding(ctx, ref.UserID, ref.NativeID); err != nil {
					log.Printf("[Sync] Failed to delete embedding %s during retention sweep: %v", ref.NativeID, err)
				}
			}
		}
	}

	if err := u.gate.PurgeExpired(cutoff); err != nil {
		return fmt.Errorf("retention sweep (vault): %w", err)
	}

	if swept > 0 {
		log.Printf("[Sync] Retention sweep removed %d emails, %d events, %d documents", len(emails), len(events), len(docs))
	}
	return nil
}

func (u *syncUsecase) ReapStuckJobs() error {
	jobs, err := u.jobRepo.FindStuck(u.cfg.SyncJobStaleAfter)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		log.Printf("[Sync] Reaping stuck job %s (user %s, provider %s, stage %s)", job.ID, job.UserID, job.Provider, job.Status)
		if err := u.jobRepo.MarkError(job.ID, "job exceeded stale threshold", true); err != nil {
			return err
		}
	}
	return nil
}
