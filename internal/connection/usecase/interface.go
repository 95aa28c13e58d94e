package usecase

import (
	"context"

	conndomain "daybrief-backend/internal/connection/domain"
	conndto "daybrief-backend/internal/connection/dto"
)

// ConnectionUsecase manages provider links: the OAuth exchange, IMAP
// credentials, and teardown.
type ConnectionUsecase interface {
	List(userID string) ([]*conndomain.Connection, error)
	ConnectGoogle(ctx context.Context, userID string, req *conndto.GoogleConnectRequest) (*conndomain.Connection, error)
	ConnectIMAP(userID string, req *conndto.IMAPConnectRequest) (*conndomain.Connection, error)
	Disconnect(ctx context.Context, userID, providerName string) error
}
