package usecase

import (
	"testing"
	"time"

	authdomain "daybrief-backend/internal/auth/domain"
	authdto "daybrief-backend/internal/auth/dto"
	"daybrief-backend/pkg/config"

	"github.com/google/uuid"
)

type stubUserRepo struct {
	users  map[string]*authdomain.User
	tokens map[string]*authdomain.RefreshToken
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		users:  make(map[string]*authdomain.User),
		tokens: make(map[string]*authdomain.RefreshToken),
	}
}

func (r *stubUserRepo) Create(user *authdomain.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	r.users[user.ID] = user
	return nil
}

func (r *stubUserRepo) FindByEmail(email string) (*authdomain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *stubUserRepo) FindByID(id string) (*authdomain.User, error) { return r.users[id], nil }

func (r *stubUserRepo) Update(user *authdomain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *stubUserRepo) SaveRefreshToken(token *authdomain.RefreshToken) error {
	r.tokens[token.Token] = token
	return nil
}

func (r *stubUserRepo) FindRefreshToken(token string) (*authdomain.RefreshToken, error) {
	return r.tokens[token], nil
}

func (r *stubUserRepo) DeleteRefreshToken(token string) error {
	delete(r.tokens, token)
	return nil
}

func (r *stubUserRepo) DeleteRefreshTokensByUser(userID string) error {
	for k, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, k)
		}
	}
	return nil
}

func (r *stubUserRepo) ReplaceRefreshToken(token *authdomain.RefreshToken) error {
	r.tokens[token.Token] = token
	return nil
}

func authTestConfig() *config.Config {
	return &config.Config{
		JWTSecret:        "test-secret",
		JWTAccessExpiry:  15 * time.Minute,
		JWTRefreshExpiry: time.Hour,
	}
}

func TestRegisterDefaultsTimezoneToUTC(t *testing.T) {
	uc := NewAuthUsecase(newStubUserRepo(), authTestConfig())

	resp, err := uc.Register(&authdto.RegisterRequest{
		Email:    "a@example.com",
		Password: "secret1",
		Name:     "A",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.User.Timezone != "UTC" {
		t.Fatalf("expected UTC default timezone, got %q", resp.User.Timezone)
	}
}

func TestRegisterRejectsUnknownTimezone(t *testing.T) {
	uc := NewAuthUsecase(newStubUserRepo(), authTestConfig())

	_, err := uc.Register(&authdto.RegisterRequest{
		Email:    "a@example.com",
		Password: "secret1",
		Name:     "A",
		Timezone: "Mars/Olympus_Mons",
	})
	if err == nil {
		t.Fatal("expected an error for an unknown timezone")
	}
}

func TestUpdateProfileChangesTimezone(t *testing.T) {
	repo := newStubUserRepo()
	uc := NewAuthUsecase(repo, authTestConfig())

	resp, err := uc.Register(&authdto.RegisterRequest{
		Email:    "a@example.com",
		Password: "secret1",
		Name:     "A",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	user, err := uc.UpdateProfile(resp.User.ID, &authdto.UpdateProfileRequest{Timezone: "UTC"})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if user.Timezone != "UTC" {
		t.Fatalf("timezone not updated, got %q", user.Timezone)
	}
	if user.Name != "A" {
		t.Fatalf("empty name must leave the existing one, got %q", user.Name)
	}

	if _, err := uc.UpdateProfile(resp.User.ID, &authdto.UpdateProfileRequest{Timezone: "not-a-zone"}); err == nil {
		t.Fatal("expected an error for an invalid timezone")
	}
}
