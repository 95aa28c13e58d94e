package imap

import (
	"context"
	"errors"
	"strings"
	"testing"

	conndomain "daybrief-backend/internal/connection/domain"
	"daybrief-backend/internal/sync/strategy"
	"daybrief-backend/pkg/syncerr"
)

const testKey = "000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f"

func TestFetchPageCorruptCredentialIsNonRetryable(t *testing.T) {
	svc := NewService(testKey)
	conn := &conndomain.Connection{
		ID:           "conn-imap",
		UserID:       "u1",
		Provider:     conndomain.ProviderMail,
		Transport:    conndomain.TransportIMAP,
		ImapServer:   "imap.example.com",
		ImapPort:     993,
		ImapUsername: "user@example.com",
		ImapPassword: "%%% not a sealed credential %%%",
	}

	_, err := svc.FetchPage(context.Background(), conn, strategy.FetchPlan{}, "", nil)
	if err == nil {
		t.Fatal("expected an error for a credential that cannot be decrypted")
	}
	if syncerr.IsRetryable(err) {
		t.Fatalf("a corrupt stored credential must not be retried: %v", err)
	}
	var se *syncerr.Error
	if !errors.As(err, &se) || se.Kind != syncerr.KindClient {
		t.Fatalf("expected a classified client error, got %v", err)
	}
	if !strings.Contains(err.Error(), "decrypt") {
		t.Fatalf("error should name the decrypt failure: %v", err)
	}
}

// The session failure modes all go through classify; a wrong password must
// surface as an auth failure so the connection gets flagged instead of the
// job burning retries, while transport failures stay retryable.
func TestClassifiedFailureKinds(t *testing.T) {
	cases := []struct {
		name      string
		kind      syncerr.Kind
		retryable bool
	}{
		{"login rejection", syncerr.KindAuth, false},
		{"dial failure", syncerr.KindNetwork, true},
		{"search failure", syncerr.KindNetwork, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(tc.kind, errors.New(tc.name))
			var se *syncerr.Error
			if !errors.As(err, &se) || se.Kind != tc.kind {
				t.Fatalf("kind not preserved through classify: %v", err)
			}
			if syncerr.IsRetryable(err) != tc.retryable {
				t.Fatalf("%s: retryable = %v, want %v", tc.name, !tc.retryable, tc.retryable)
			}
		})
	}
}
