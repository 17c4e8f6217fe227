package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"glowsalon/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func newStubStore(users ...domain.UserAccount) *userStoreStub {
	store := &userStoreStub{users: make(map[string]domain.UserAccount)}
	for _, user := range users {
		store.users[user.Username] = user
	}
	return store
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := newStubStore(domain.UserAccount{
		Username:  "admin",
		Password:  "admin123",
		Role:      domain.RoleAdmin,
		StaffID:   "stf-dewi",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})

	manager := NewAuthManager("test-secret-key-with-32-characters", time.Hour, store)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin || resp.StaffID != "stf-dewi" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestLoginIsCaseInsensitiveOnUsername(t *testing.T) {
	store := newStubStore(domain.UserAccount{Username: "ana", Password: "staff123", Role: domain.RoleStaff, StaffID: "stf-ana", Active: true})
	manager := NewAuthManager("test-secret-key-with-32-characters", time.Hour, store)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "  ANA ", Password: "staff123"}); err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ana", Password: "wrong"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	store := newStubStore(domain.UserAccount{Username: "bea", Password: "staff123", Role: domain.RoleStaff, StaffID: "stf-bea", Active: false})
	manager := NewAuthManager("test-secret-key-with-32-characters", time.Hour, store)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "bea", Password: "staff123"}); !errors.Is(err, errInactiveAccount) {
		t.Fatalf("expected inactive account error, got %v", err)
	}
}

func TestParseTokenRoundTripsActor(t *testing.T) {
	store := newStubStore(domain.UserAccount{Username: "ana", Password: "staff123", Role: domain.RoleStaff, StaffID: "stf-ana", Active: true})
	manager := NewAuthManager("test-secret-key-with-32-characters", time.Hour, store)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ana", Password: "staff123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "ana" || actor.Role != domain.RoleStaff || actor.StaffID != "stf-ana" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager("another-secret-key-with-32-characters", time.Hour, store)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	store := newStubStore(domain.UserAccount{Username: "ana", Password: "staff123", Role: domain.RoleStaff, StaffID: "stf-ana", Active: true})
	manager := NewAuthManager("test-secret-key-with-32-characters", time.Hour, store)
	manager.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ana", Password: "staff123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestChangePasswordRequiresCurrentPassword(t *testing.T) {
	store := newStubStore(domain.UserAccount{Username: "ana", Password: "staff123", Role: domain.RoleStaff, StaffID: "stf-ana", Active: true})
	manager := NewAuthManager("test-secret-key-with-32-characters", time.Hour, store)
	ctx := context.Background()

	if err := manager.ChangePassword(ctx, "ana", "nope", "brand-new-pass"); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := manager.ChangePassword(ctx, "ana", "staff123", "short"); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	if err := manager.ChangePassword(ctx, "ana", "staff123", "brand-new-pass"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "ana", Password: "staff123"}); err == nil {
		t.Fatalf("expected old password to stop working")
	}
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "ana", Password: "brand-new-pass"}); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if stored := store.users["ana"].Password; !strings.HasPrefix(stored, "$2") {
		t.Fatalf("expected stored password to be hashed, got %s", stored)
	}
}

func TestIssueExamTokenCarriesCandidateScope(t *testing.T) {
	manager := NewAuthManager("test-secret-key-with-32-characters", time.Hour, newStubStore())

	access, err := manager.IssueExamToken(domain.ExamCode{ID: "exm-1", UsedBy: "Sari"})
	if err != nil {
		t.Fatalf("issue exam token failed: %v", err)
	}
	if access.CandidateName != "Sari" || access.ExamCodeID != "exm-1" {
		t.Fatalf("unexpected exam access %+v", access)
	}

	actor, err := manager.ParseToken(access.AccessToken)
	if err != nil {
		t.Fatalf("parse exam token failed: %v", err)
	}
	if actor.Role != domain.RoleCandidate || actor.ExamCodeID != "exm-1" || actor.Username != "Sari" {
		t.Fatalf("unexpected candidate actor %+v", actor)
	}
}
