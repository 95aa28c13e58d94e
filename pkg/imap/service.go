package imap

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	conndomain "daybrief-backend/internal/connection/domain"
	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/internal/sync/provider"
	"daybrief-backend/internal/sync/strategy"
	"daybrief-backend/pkg/syncerr"
	crypto "daybrief-backend/pkg/utils/crypto"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// Service is the mail provider for non-Gmail accounts. IMAP has no delta
// tokens, so both initial and delta plans become a SEARCH SINCE cutoff;
// pagination is emulated with a numeric offset carried in the page token.
type Service struct {
	encryptionKey string
}

func NewService(encryptionKey string) *Service {
	return &Service{encryptionKey: encryptionKey}
}

// classify wraps an IMAP failure so the sync state machine can tell auth
// failures (flag the connection, don't retry) from transient ones.
func classify(kind syncerr.Kind, err error) error {
	return &syncerr.Error{Kind: kind, Err: err}
}

func (s *Service) FetchPage(ctx context.Context, conn *conndomain.Connection, plan strategy.FetchPlan, pageToken string, onTokenRefresh provider.TokenUpdateFunc) (*provider.Page, error) {
	password, err := crypto.Decrypt(conn.ImapPassword, s.encryptionKey)
	if err != nil {
		// A stored credential that no longer decrypts won't fix itself.
		return nil, classify(syncerr.KindClient, fmt.Errorf("failed to decrypt IMAP password: %w", err))
	}

	c, err := client.DialTLS(fmt.Sprintf("%s:%d", conn.ImapServer, conn.ImapPort), nil)
	if err != nil {
		return nil, classify(syncerr.KindNetwork, fmt.Errorf("failed to connect to IMAP server: %w", err))
	}
	defer c.Logout()

	if err := c.Login(conn.ImapUsername, password); err != nil {
		return nil, classify(syncerr.KindAuth, fmt.Errorf("IMAP login failed: %w", err))
	}

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, classify(syncerr.KindNetwork, fmt.Errorf("failed to select INBOX: %w", err))
	}

	cutoff := plan.WindowStart
	if plan.Mode == strategy.ModeDelta && plan.UpdatedSince != nil {
		cutoff = *plan.UpdatedSince
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = cutoff
	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, classify(syncerr.KindNetwork, fmt.Errorf("IMAP search failed: %w", err))
	}
	if len(seqNums) == 0 {
		return &provider.Page{}, nil
	}

	offset := 0
	if pageToken != "" {
		offset, _ = strconv.Atoi(pageToken)
	}
	if offset >= len(seqNums) {
		return &provider.Page{}, nil
	}
	end := offset + plan.PageSize
	if end > len(seqNums) {
		end = len(seqNums)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums[offset:end]...)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, plan.PageSize)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}, messages)
	}()

	var items []syncdomain.Item
	for msg := range messages {
		items = append(items, s.messageItem(msg, section))
	}
	if err := <-done; err != nil {
		return nil, classify(syncerr.KindNetwork, fmt.Errorf("IMAP fetch failed: %w", err))
	}

	page := &provider.Page{Items: items}
	if end < len(seqNums) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (s *Service) messageItem(msg *imap.Message, section *imap.BodySectionName) syncdomain.Item {
	item := syncdomain.Item{
		NativeID: fmt.Sprintf("imap-%d", msg.Uid),
		Kind:     syncdomain.KindEmail,
	}
	if msg.Envelope != nil {
		item.Subject = msg.Envelope.Subject
		item.ReceivedAt = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			item.FromAddr = msg.Envelope.From[0].Address()
		}
	}

	body := msg.GetBody(section)
	if body == nil {
		return item
	}
	mr, err := mail.CreateReader(body)
	if err != nil {
		return item
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if header, ok := part.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := header.ContentType()
			if strings.HasPrefix(contentType, "text/plain") {
				data, _ := io.ReadAll(part.Body)
				item.Body = string(data)
				break
			}
		}
	}
	return item
}
