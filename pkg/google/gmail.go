package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	conndomain "daybrief-backend/internal/connection/domain"
	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/internal/sync/provider"
	"daybrief-backend/internal/sync/strategy"
	"daybrief-backend/pkg/syncerr"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailClient fetches inbox messages through the Gmail API. Detail fetches
// within a page run concurrently with a bounded fan-out to respect the
// API's rate limits.
type GmailClient struct {
	svc    *Service
	fanout int
}

func NewGmailClient(svc *Service, fanout int) *GmailClient {
	if fanout <= 0 {
		fanout = 5
	}
	return &GmailClient{svc: svc, fanout: fanout}
}

func (c *GmailClient) FetchPage(ctx context.Context, conn *conndomain.Connection, plan strategy.FetchPlan, pageToken string, onTokenRefresh provider.TokenUpdateFunc) (*provider.Page, error) {
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(c.svc.HTTPClient(ctx, conn, onTokenRefresh)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	q := buildQuery(plan)
	call := srv.Users.Messages.List("me").
		Q(q).
		MaxResults(int64(plan.PageSize)).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, syncerr.Classify(err)
	}

	items := make([]syncdomain.Item, len(resp.Messages))
	errs := make([]error, len(resp.Messages))

	// Bounded fan-out for per-message detail fetches.
	sem := make(chan struct{}, c.fanout)
	var wg sync.WaitGroup
	for i, ref := range resp.Messages {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			msg, err := srv.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
			if err != nil {
				errs[i] = syncerr.Classify(err)
				return
			}
			items[i] = gmailItem(msg)
		}(i, ref.Id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return &provider.Page{Items: items, NextPageToken: resp.NextPageToken}, nil
}

func buildQuery(plan strategy.FetchPlan) string {
	if plan.Mode == strategy.ModeDelta && plan.UpdatedSince != nil {
		return fmt.Sprintf("in:inbox after:%d", plan.UpdatedSince.Unix())
	}
	return fmt.Sprintf("in:inbox after:%d", plan.WindowStart.Unix())
}

func gmailItem(msg *gmail.Message) syncdomain.Item {
	item := syncdomain.Item{
		NativeID:   msg.Id,
		Kind:       syncdomain.KindEmail,
		ReceivedAt: time.UnixMilli(msg.InternalDate),
	}
	if msg.Payload == nil {
		return item
	}

	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "Subject":
			item.Subject = h.Value
		case "From":
			item.FromAddr = h.Value
		}
	}

	item.Body = extractBody(msg.Payload)
	if item.Body == "" {
		item.Body = msg.Snippet
	}
	return item
}

// extractBody walks the MIME tree for the first text/plain part.
func extractBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		return string(decoded)
	}
	for _, child := range part.Parts {
		if body := extractBody(child); body != "" {
			return body
		}
	}
	return ""
}
