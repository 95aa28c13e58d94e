package google

import (
	"context"
	"log"
	"net/http"
	"time"

	conndomain "daybrief-backend/internal/connection/domain"
	"daybrief-backend/internal/sync/provider"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

// Service carries the OAuth client pair shared by the calendar, gmail and
// drive clients.
type Service struct {
	clientID     string
	clientSecret string
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback provider.TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[Google] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

// HTTPClient builds an authorized client for a connection, persisting token
// refreshes through the callback.
func (s *Service) HTTPClient(ctx context.Context, conn *conndomain.Connection, onTokenRefresh provider.TokenUpdateFunc) *http.Client {
	token := &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       conn.TokenExpiry,
	}

	// Only force refresh if we have a refresh token
	if conn.RefreshToken != "" && conn.TokenExpiry.IsZero() {
		token.Expiry = time.Now()
	}

	cfg := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     googleoauth.Endpoint,
	}

	wrapped := &notifyTokenSource{
		src:      cfg.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	return oauth2.NewClient(ctx, wrapped)
}
