// Package provider defines the uniform pagination contract the sync engine
// depends on. Concrete clients (Google APIs, IMAP) live under pkg/ and
// normalize their wire formats into domain.Item.
package provider

import (
	"context"

	conndomain "daybrief-backend/internal/connection/domain"
	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/internal/sync/strategy"

	"golang.org/x/oauth2"
)

// TokenUpdateFunc is invoked when a client refreshes OAuth tokens, so the
// new pair can be persisted on the connection.
type TokenUpdateFunc func(token *oauth2.Token) error

// Page is one page of fetched records. NextPageToken continues the current
// fetch; an empty value ends pagination. NextSyncToken, when present, is
// the provider's fresh delta checkpoint for the next run.
type Page struct {
	Items         []syncdomain.Item
	NextPageToken string
	NextSyncToken string
}

// Client fetches one page for a connection according to a fetch plan.
// Failures must be classified (pkg/syncerr) before they surface; an expired
// delta token must surface as syncerr.ErrSyncTokenExpired.
type Client interface {
	FetchPage(ctx context.Context, conn *conndomain.Connection, plan strategy.FetchPlan, pageToken string, onTokenRefresh TokenUpdateFunc) (*Page, error)
}

// Registry resolves which client serves a connection, keyed by
// (provider, transport).
type Registry struct {
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

func (r *Registry) Register(providerName, transport string, c Client) {
	r.clients[providerName+"/"+transport] = c
}

// For returns the client for a connection, nil when none is registered.
func (r *Registry) For(conn *conndomain.Connection) Client {
	transport := conn.Transport
	if transport == "" {
		transport = conndomain.TransportGoogle
	}
	return r.clients[conn.Provider+"/"+transport]
}
