package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lapakdigital/backend/internal/domain"
	"lapakdigital/backend/internal/store/memory"
)

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func newUserStore(t *testing.T, users ...domain.UserAccount) *memory.Store {
	t.Helper()
	repo := memory.New()
	for _, u := range users {
		if err := repo.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("create user %s: %v", u.Username, err)
		}
	}
	return repo
}

func TestLoginAndParseToken(t *testing.T) {
	repo := newUserStore(t, domain.UserAccount{
		Username: "operator",
		Password: mustHashPassword(t, "s3cret"),
		Role:     "admin",
		Active:   true,
	})
	auth := NewAuthManager("unit-test-secret", time.Hour, repo)

	resp, err := auth.Login(domain.LoginRequest{Username: "Operator", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" || resp.AccessToken == "" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "operator" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := newUserStore(t, domain.UserAccount{
		Username: "operator",
		Password: mustHashPassword(t, "s3cret"),
		Role:     "admin",
		Active:   true,
	})
	auth := NewAuthManager("unit-test-secret", time.Hour, repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "operator", Password: "wrong"}); err == nil {
		t.Fatalf("wrong password must fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "s3cret"}); err == nil {
		t.Fatalf("unknown user must fail")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	repo := newUserStore(t, domain.UserAccount{
		Username: "retired",
		Password: mustHashPassword(t, "s3cret"),
		Role:     "admin",
		Active:   false,
	})
	auth := NewAuthManager("unit-test-secret", time.Hour, repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "retired", Password: "s3cret"}); err == nil {
		t.Fatalf("inactive account must fail")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	repo := newUserStore(t, domain.UserAccount{
		Username: "operator",
		Password: mustHashPassword(t, "s3cret"),
		Role:     "admin",
		Active:   true,
	})
	issuer := NewAuthManager("secret-one", time.Hour, repo)
	verifier := NewAuthManager("secret-two", time.Hour, repo)

	resp, err := issuer.Login(domain.LoginRequest{Username: "operator", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("token signed with another secret must be rejected")
	}
	if _, err := verifier.ParseToken("definitely.not.ajwt"); err == nil {
		t.Fatalf("garbage token must be rejected")
	}
}

func TestBootstrapUpgradesPlaintextPasswords(t *testing.T) {
	repo := newUserStore(t, domain.UserAccount{
		Username: "legacy",
		Password: "plain-password",
		Role:     "admin",
		Active:   true,
	})

	auth := NewAuthManager("unit-test-secret", time.Hour, repo)

	// The plaintext credential must still work after the upgrade.
	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plain-password"}); err != nil {
		t.Fatalf("login after upgrade failed: %v", err)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, u := range users {
		if u.Username != "legacy" {
			continue
		}
		if !strings.HasPrefix(u.Password, "$2") {
			t.Fatalf("stored password was not upgraded to bcrypt: %q", u.Password)
		}
		return
	}
	t.Fatalf("legacy user missing from store")
}
