package usecase

import (
	"context"

	briefdomain "daybrief-backend/internal/briefing/domain"
	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/pkg/gemini"
)

// Generator is the slice of the LLM service the usecase needs.
type Generator interface {
	GenerateBriefing(ctx context.Context, contextBlock string) (*gemini.BriefingResult, error)
}

// Notifier pushes server-sent events to connected clients.
type Notifier interface {
	SendToUser(userID, event string, payload interface{})
}

// BriefingUsecase owns the daily briefing lifecycle: staleness checks after
// sync runs and on the clock, regeneration through the LLM, and reads.
type BriefingUsecase interface {
	// CheckAndRegenerate classifies staleness after a sync run (or a pure
	// clock tick with zero stats) and regenerates when needed. Returns the
	// briefing when one was (re)generated, nil when still fresh.
	CheckAndRegenerate(ctx context.Context, userID string, stats syncdomain.RunStats) (*briefdomain.Briefing, error)
	// Regenerate unconditionally rebuilds today's briefing.
	Regenerate(ctx context.Context, userID string, reasons []string) (*briefdomain.Briefing, error)
	Today(userID string) (*briefdomain.Briefing, error)
	PurgeUser(userID string) error
}
