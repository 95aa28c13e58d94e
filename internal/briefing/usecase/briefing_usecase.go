package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	authrepo "daybrief-backend/internal/auth/repository"
	"daybrief-backend/internal/briefing"
	briefdomain "daybrief-backend/internal/briefing/domain"
	briefrepo "daybrief-backend/internal/briefing/repository"
	secusecase "daybrief-backend/internal/security/usecase"
	syncdomain "daybrief-backend/internal/sync/domain"
	syncrepo "daybrief-backend/internal/sync/repository"
)

const (
	contextEmailLimit = 20
	contextDocLimit   = 10
)

// briefingUsecase implements BriefingUsecase interface
type briefingUsecase struct {
	briefingRepo briefrepo.BriefingRepository
	emailRepo    syncrepo.EmailRepository
	eventRepo    syncrepo.EventRepository
	docRepo      syncrepo.DocumentRepository
	userRepo     authrepo.UserRepository
	generator    Generator
	gate         secusecase.DLPGate
	notifier     Notifier

	now func() time.Time

	mu          sync.Mutex
	lastChecked map[string]time.Time
}

// NewBriefingUsecase creates a new instance of briefingUsecase
func NewBriefingUsecase(
	briefingRepo briefrepo.BriefingRepository,
	emailRepo syncrepo.EmailRepository,
	eventRepo syncrepo.EventRepository,
	docRepo syncrepo.DocumentRepository,
	userRepo authrepo.UserRepository,
	generator Generator,
	gate secusecase.DLPGate,
	notifier Notifier,
) BriefingUsecase {
	return &briefingUsecase{
		briefingRepo: briefingRepo,
		emailRepo:    emailRepo,
		eventRepo:    eventRepo,
		docRepo:      docRepo,
		userRepo:     userRepo,
		generator:    generator,
		gate:         gate,
		notifier:     notifier,
		now:          time.Now,
		lastChecked:  make(map[string]time.Time),
	}
}

// userLocation resolves the user's briefing timezone. Anything that fails to
// load degrades to UTC rather than blocking the briefing.
func (u *briefingUsecase) userLocation(userID string) *time.Location {
	user, err := u.userRepo.FindByID(userID)
	if err != nil || user == nil || user.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		log.Printf("[Briefing] Unknown timezone %q for user %s, using UTC", user.Timezone, userID)
		return time.UTC
	}
	return loc
}

func (u *briefingUsecase) CheckAndRegenerate(ctx context.Context, userID string, stats syncdomain.RunStats) (*briefdomain.Briefing, error) {
	now := u.now()
	loc := u.userLocation(userID)

	current, err := u.briefingRepo.FindByUserAndDate(userID, now.In(loc).Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	var lastGenerated *time.Time
	if current != nil {
		t := current.GeneratedAt
		lastGenerated = &t
	}

	// Events around now: recently ended ones for the ended rule, upcoming
	// ones for the imminent rule.
	events, err := u.eventRepo.ListInWindow(userID, now.Add(-24*time.Hour), now.Add(48*time.Hour))
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	var lastChecked *time.Time
	if t, ok := u.lastChecked[userID]; ok {
		lastChecked = &t
	}
	u.lastChecked[userID] = now
	u.mu.Unlock()

	decision := briefing.Classify(briefing.ClassifyInput{
		Now:             now,
		Location:        loc,
		LastGeneratedAt: lastGenerated,
		LastCheckedAt:   lastChecked,
		Stats:           stats,
		Events:          events,
	})
	if !decision.Regenerate {
		return nil, nil
	}

	log.Printf("[Briefing] Regenerating for user %s: %v", userID, decision.Reasons)
	return u.Regenerate(ctx, userID, decision.Reasons)
}

func (u *briefingUsecase) Regenerate(ctx context.Context, userID string, reasons []string) (*briefdomain.Briefing, error) {
	now := u.now()
	loc := u.userLocation(userID)

	contextBlock, err := u.buildContext(userID, now, loc)
	if err != nil {
		return nil, err
	}

	result, err := u.generator.GenerateBriefing(ctx, contextBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to generate briefing: %w", err)
	}

	// The model only ever saw redacted context, but it can still synthesize
	// something sensitive-looking. Rescan its output; the briefing is a
	// best-effort artifact, so a scan outage passes it through rather than
	// losing the day's briefing.
	texts := []string{result.Headline}
	for _, s := range result.Sections {
		texts = append(texts, s.Title, s.Body)
	}
	redacted, err := u.gate.RedactTexts(ctx, userID, texts, secusecase.FailOpen)
	if err != nil {
		return nil, err
	}
	result.Headline = redacted[0]
	for i := range result.Sections {
		result.Sections[i].Title = redacted[1+2*i]
		result.Sections[i].Body = redacted[2+2*i]
	}

	sections, err := json.Marshal(result.Sections)
	if err != nil {
		return nil, err
	}

	b := &briefdomain.Briefing{
		UserID:      userID,
		Date:        now.In(loc).Format("2006-01-02"),
		Headline:    result.Headline,
		Sections:    sections,
		Reasons:     reasons,
		GeneratedAt: now,
	}
	if err := u.briefingRepo.Upsert(b); err != nil {
		return nil, fmt.Errorf("failed to save briefing: %w", err)
	}

	if u.notifier != nil {
		u.notifier.SendToUser(userID, "briefing.updated", b)
	}
	return b, nil
}

func (u *briefingUsecase) Today(userID string) (*briefdomain.Briefing, error) {
	return u.briefingRepo.FindByUserAndDate(userID, u.now().In(u.userLocation(userID)).Format("2006-01-02"))
}

func (u *briefingUsecase) PurgeUser(userID string) error {
	u.mu.Lock()
	delete(u.lastChecked, userID)
	u.mu.Unlock()
	return u.briefingRepo.DeleteByUser(userID)
}

// buildContext assembles the redacted mirror data into the prompt context.
// Each source degrades independently: a failing read is logged and skipped
// so one empty table never blocks the briefing.
func (u *briefingUsecase) buildContext(userID string, now time.Time, loc *time.Location) (string, error) {
	var sb strings.Builder

	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	events, err := u.eventRepo.ListInWindow(userID, dayStart, dayStart.Add(48*time.Hour))
	if err != nil {
		log.Printf("[Briefing] Failed to load events for user %s: %v", userID, err)
	}
	if len(events) > 0 {
		sb.WriteString("## Calendar\n")
		for _, ev := range events {
			line := fmt.Sprintf("- %s: %s to %s", ev.Title, ev.StartsAt.Format(time.RFC3339), ev.EndsAt.Format(time.RFC3339))
			if ev.AllDay {
				line = fmt.Sprintf("- %s: all day %s", ev.Title, ev.StartsAt.Format("2006-01-02"))
			}
			if ev.HasConflict {
				line += fmt.Sprintf(" (conflicts with %d other events)", len(ev.ConflictWith))
			}
			sb.WriteString(line + "\n")
		}
	}

	emails, err := u.emailRepo.ListRecent(userID, now.Add(-24*time.Hour), contextEmailLimit)
	if err != nil {
		log.Printf("[Briefing] Failed to load emails for user %s: %v", userID, err)
	}
	if len(emails) > 0 {
		sb.WriteString("## Recent mail\n")
		for _, m := range emails {
			sb.WriteString(fmt.Sprintf("- From %s: %s\n", m.FromAddr, m.Subject))
		}
	}

	docs, err := u.docRepo.ListRecent(userID, now.Add(-24*time.Hour), contextDocLimit)
	if err != nil {
		log.Printf("[Briefing] Failed to load documents for user %s: %v", userID, err)
	}
	if len(docs) > 0 {
		sb.WriteString("## Recently modified files\n")
		for _, d := range docs {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", d.Name, d.MimeType))
		}
	}

	if sb.Len() == 0 {
		sb.WriteString("No synced data yet.\n")
	}
	return sb.String(), nil
}
