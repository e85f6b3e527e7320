package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"meunegocio/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
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

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	stub := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				TenantID:  "tenant-demo",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, stub)
	if _, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := stub.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatal("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt hash, got %q", users[0].Password)
	}
}

func TestTokenCarriesTenant(t *testing.T) {
	stub := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username: "admin",
				Password: "admin123",
				Role:     "admin",
				TenantID: "tenant-demo",
				Active:   true,
			},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, stub)

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.TenantID != "tenant-demo" {
		t.Fatalf("login tenant = %q, want tenant-demo", resp.TenantID)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.TenantID != "tenant-demo" || actor.Role != "admin" || actor.UserID != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestParseTokenRejectsTenantlessToken(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)

	token, err := manager.sign("ghost", "admin", "", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatal("expected error for token without tenant")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)
	other := NewAuthManager("other-secret", time.Hour, nil)

	token, err := other.sign("admin", "admin", "tenant-demo", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatal("expected error for token signed with another secret")
	}
}

func TestCreateOperatorValidation(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})
	creator := domain.Actor{UserID: "admin", Role: "admin", TenantID: "tenant-demo"}

	if _, err := manager.CreateOperator(creator, domain.OperatorCreateRequest{Username: "ab", Password: "secret1"}); err == nil {
		t.Fatal("expected error for short username")
	}
	if _, err := manager.CreateOperator(creator, domain.OperatorCreateRequest{Username: "carla", Password: "123"}); err == nil {
		t.Fatal("expected error for short password")
	}

	operator, err := manager.CreateOperator(creator, domain.OperatorCreateRequest{Username: "Carla", Password: "secret1"})
	if err != nil {
		t.Fatalf("create operator: %v", err)
	}
	if operator.Username != "carla" || operator.Role != "operator" {
		t.Fatalf("unexpected operator: %+v", operator)
	}

	if _, err := manager.CreateOperator(creator, domain.OperatorCreateRequest{Username: "carla", Password: "secret1"}); err == nil {
		t.Fatal("expected error for duplicate username")
	}

	operators := manager.ListOperators("tenant-demo")
	if len(operators) != 1 || operators[0].Username != "carla" {
		t.Fatalf("unexpected operator list: %+v", operators)
	}
	if others := manager.ListOperators("tenant-other"); len(others) != 0 {
		t.Fatalf("expected no operators for other tenant, got %+v", others)
	}
}
