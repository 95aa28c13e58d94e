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

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveClient fetches file metadata from Google Drive.
type DriveClient struct {
	svc *Service
}

func NewDriveClient(svc *Service) *DriveClient {
	return &DriveClient{svc: svc}
}

func (c *DriveClient) FetchPage(ctx context.Context, conn *conndomain.Connection, plan strategy.FetchPlan, pageToken string, onTokenRefresh provider.TokenUpdateFunc) (*provider.Page, error) {
	srv, err := drive.NewService(ctx, option.WithHTTPClient(c.svc.HTTPClient(ctx, conn, onTokenRefresh)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	var cutoff time.Time
	if plan.Mode == strategy.ModeDelta && plan.UpdatedSince != nil {
		cutoff = *plan.UpdatedSince
	} else {
		cutoff = plan.WindowStart
	}

	call := srv.Files.List().
		Q(fmt.Sprintf("modifiedTime > '%s'", cutoff.UTC().Format(time.RFC3339))).
		Fields("nextPageToken, files(id, name, mimeType, modifiedTime, trashed)").
		OrderBy("modifiedTime").
		PageSize(int64(plan.PageSize)).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, syncerr.Classify(err)
	}

	page := &provider.Page{NextPageToken: resp.NextPageToken}
	for _, f := range resp.Files {
		modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
		page.Items = append(page.Items, syncdomain.Item{
			NativeID:   f.Id,
			Kind:       syncdomain.KindDocument,
			Name:       f.Name,
			MimeType:   f.MimeType,
			ModifiedAt: modified,
			Deleted:    f.Trashed,
		})
	}
	return page, nil
}
