package google

import (
	"context"
	"fmt"
	"time"

	conndomain "daybrief-backend/internal/connection/domain"
	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/internal/sync/provider"
	"daybrief-backend/internal/sync/strategy"
	"daybrief-backend/pkg/syncerr"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// CalendarClient fetches events from the user's primary Google calendar.
type CalendarClient struct {
	svc *Service
}

func NewCalendarClient(svc *Service) *CalendarClient {
	return &CalendarClient{svc: svc}
}

func (c *CalendarClient) FetchPage(ctx context.Context, conn *conndomain.Connection, plan strategy.FetchPlan, pageToken string, onTokenRefresh provider.TokenUpdateFunc) (*provider.Page, error) {
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(c.svc.HTTPClient(ctx, conn, onTokenRefresh)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}

	call := srv.Events.List("primary").
		SingleEvents(true).
		ShowDeleted(true).
		MaxResults(int64(plan.PageSize)).
		Context(ctx)

	if plan.Mode == strategy.ModeDelta && plan.SyncToken != "" {
		call = call.SyncToken(plan.SyncToken)
	} else {
		call = call.
			TimeMin(plan.WindowStart.Format(time.RFC3339)).
			TimeMax(plan.WindowEnd.Format(time.RFC3339))
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		// A rejected sync token surfaces as 410 and becomes the expired
		// sentinel inside Classify.
		return nil, syncerr.Classify(err)
	}

	page := &provider.Page{
		NextPageToken: resp.NextPageToken,
		NextSyncToken: resp.NextSyncToken,
	}
	for _, ev := range resp.Items {
		page.Items = append(page.Items, calendarItem(ev))
	}
	return page, nil
}

func calendarItem(ev *calendar.Event) syncdomain.Item {
	item := syncdomain.Item{
		NativeID: ev.Id,
		Kind:     syncdomain.KindEvent,
		Title:    ev.Summary,
		Deleted:  ev.Status == "cancelled",
	}

	if ev.Start != nil {
		if ev.Start.Date != "" {
			// All-day events come as exclusive date ranges; store the end
			// as the inclusive last day.
			item.AllDay = true
			item.StartsAt, _ = time.Parse("2006-01-02", ev.Start.Date)
			if ev.End != nil && ev.End.Date != "" {
				end, _ := time.Parse("2006-01-02", ev.End.Date)
				item.EndsAt = end.AddDate(0, 0, -1)
			}
		} else {
			item.StartsAt, _ = time.Parse(time.RFC3339, ev.Start.DateTime)
			if ev.End != nil {
				item.EndsAt, _ = time.Parse(time.RFC3339, ev.End.DateTime)
			}
		}
	}
	return item
}
