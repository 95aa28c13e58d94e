package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	briefusecase "daybrief-backend/internal/briefing/usecase"
	conndomain "daybrief-backend/internal/connection/domain"
	conndto "daybrief-backend/internal/connection/dto"
	connrepo "daybrief-backend/internal/connection/repository"
	syncusecase "daybrief-backend/internal/sync/usecase"
	"daybrief-backend/pkg/config"
	crypto "daybrief-backend/pkg/utils/crypto"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Read-only scopes per provider; the mirror never writes back upstream.
var googleScopes = map[string][]string{
	conndomain.ProviderMail:     {"https://www.googleapis.com/auth/gmail.readonly"},
	conndomain.ProviderCalendar: {"https://www.googleapis.com/auth/calendar.readonly"},
	conndomain.ProviderDrive:    {"https://www.googleapis.com/auth/drive.metadata.readonly"},
}

// connectionUsecase implements ConnectionUsecase interface
type connectionUsecase struct {
	cfg        *config.Config
	connRepo   connrepo.ConnectionRepository
	syncUC     syncusecase.SyncUsecase
	briefingUC briefusecase.BriefingUsecase
}

// NewConnectionUsecase creates a new instance of connectionUsecase
func NewConnectionUsecase(cfg *config.Config, connRepo connrepo.ConnectionRepository, syncUC syncusecase.SyncUsecase, briefingUC briefusecase.BriefingUsecase) ConnectionUsecase {
	return &connectionUsecase{
		cfg:        cfg,
		connRepo:   connRepo,
		syncUC:     syncUC,
		briefingUC: briefingUC,
	}
}

func (u *connectionUsecase) List(userID string) ([]*conndomain.Connection, error) {
	return u.connRepo.FindByUser(userID)
}

func (u *connectionUsecase) ConnectGoogle(ctx context.Context, userID string, req *conndto.GoogleConnectRequest) (*conndomain.Connection, error) {
	oauthCfg := &oauth2.Config{
		ClientID:     u.cfg.GoogleClientID,
		ClientSecret: u.cfg.GoogleClientSecret,
		RedirectURL:  u.cfg.GoogleRedirectURI,
		Endpoint:     google.Endpoint,
		Scopes:       googleScopes[req.Provider],
	}

	token, err := oauthCfg.Exchange(ctx, req.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, errors.New("no refresh token granted; re-consent with offline access required")
	}

	email, err := fetchAccountEmail(ctx, oauthCfg.Client(ctx, token))
	if err != nil {
		return nil, err
	}

	conn := &conndomain.Connection{
		UserID:            userID,
		Provider:          req.Provider,
		Transport:         conndomain.TransportGoogle,
		ExternalAccountID: email,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		TokenExpiry:       token.Expiry,
	}
	if err := u.connRepo.Upsert(conn); err != nil {
		return nil, fmt.Errorf("failed to save connection: %w", err)
	}
	log.Printf("[Connection] User %s connected %s (%s)", userID, req.Provider, email)
	return conn, nil
}

func (u *connectionUsecase) ConnectIMAP(userID string, req *conndto.IMAPConnectRequest) (*conndomain.Connection, error) {
	encrypted, err := crypto.Encrypt(req.Password, u.cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt IMAP password: %w", err)
	}

	conn := &conndomain.Connection{
		UserID:            userID,
		Provider:          conndomain.ProviderMail,
		Transport:         conndomain.TransportIMAP,
		ExternalAccountID: req.Username,
		ImapServer:        req.Server,
		ImapPort:          req.Port,
		ImapUsername:      req.Username,
		ImapPassword:      encrypted,
	}
	if err := u.connRepo.Upsert(conn); err != nil {
		return nil, fmt.Errorf("failed to save connection: %w", err)
	}
	log.Printf("[Connection] User %s connected mail over IMAP (%s)", userID, req.Username)
	return conn, nil
}

// Disconnect tears the provider down and rebuilds the briefing without its
// data.
func (u *connectionUsecase) Disconnect(ctx context.Context, userID, providerName string) error {
	if err := u.syncUC.Disconnect(ctx, userID, providerName); err != nil {
		return err
	}
	if _, err := u.briefingUC.Regenerate(ctx, userID, []string{"disconnect"}); err != nil {
		log.Printf("[Connection] Briefing rebuild after disconnect failed for %s: %v", userID, err)
	}
	return nil
}

type userInfo struct {
	Email string `json:"email"`
}

func fetchAccountEmail(ctx context.Context, client *http.Client) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch account info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("account info request returned %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("failed to decode account info: %w", err)
	}
	if info.Email == "" {
		return "", errors.New("account info missing email")
	}
	return info.Email, nil
}
