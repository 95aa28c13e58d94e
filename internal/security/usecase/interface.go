package usecase

import (
	"context"
	"time"

	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/pkg/dlp"
)

// Policy decides what happens to items when the scan service is unavailable.
type Policy string

const (
	// FailClosed aborts the batch; nothing unscanned reaches storage.
	FailClosed Policy = "fail_closed"
	// FailOpen lets text through unscanned; used for derived surfaces like
	// generated briefing sections, which are built from already-redacted
	// inputs, where availability wins.
	FailOpen Policy = "fail_open"
)

// Scanner is the slice of the DLP client the gate needs.
type Scanner interface {
	Scan(ctx context.Context, texts []string) ([][]dlp.Finding, error)
}

// DLPGate redacts sensitive spans out of fetched items before they are
// persisted, vaulting the originals encrypted. RedactTexts covers generated
// text that never went through item ingestion, such as briefing sections.
type DLPGate interface {
	RedactItems(ctx context.Context, userID string, items []syncdomain.Item, policy Policy) ([]syncdomain.Item, error)
	RedactTexts(ctx context.Context, userID string, texts []string, policy Policy) ([]string, error)
	Reveal(userID, token string) (string, error)
	PurgeUser(userID string) error
	PurgeExpired(cutoff time.Time) error
}
