package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"sitework/internal/auth"
	"sitework/internal/db"
	"sitework/internal/migrate"
	"sitework/internal/repo"
	"sitework/internal/session"
)

func newTestService(t *testing.T) (auth.Service, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	mr := miniredis.RunT(t)
	sessions := session.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { sessions.Close() })
	return auth.Service{
		Repo:       repo.Repo{DB: conn},
		Sessions:   sessions,
		Secret:     "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, context.Background()
}

func TestRegisterAndLogin(t *testing.T) {
	s, ctx := newTestService(t)
	u, err := s.Register(ctx, "  Foreman@Example.COM ", "longenough", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "foreman@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if u.Role != "user" || !u.Active {
		t.Fatalf("unexpected defaults: %+v", u)
	}

	pair, err := s.Login(ctx, "foreman@example.com", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.TokenType != "bearer" {
		t.Fatalf("incomplete token pair: %+v", pair)
	}
}

func TestRegisterValidation(t *testing.T) {
	s, ctx := newTestService(t)
	if _, err := s.Register(ctx, "", "longenough", ""); err == nil {
		t.Fatalf("expected error for empty email")
	}
	if _, err := s.Register(ctx, "a@b.c", "short", ""); err == nil {
		t.Fatalf("expected error for short password")
	}
	if _, err := s.Register(ctx, "a@b.c", "longenough", "superadmin"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if _, err := s.Register(ctx, "a@b.c", "longenough", "manager"); err != nil {
		t.Fatalf("manager role rejected: %v", err)
	}
	if _, err := s.Register(ctx, "a@b.c", "longenough", "manager"); err == nil {
		t.Fatalf("expected duplicate email error")
	}
}

func TestLoginFailures(t *testing.T) {
	s, ctx := newTestService(t)
	u, err := s.Register(ctx, "worker@example.com", "longenough", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := s.Login(ctx, "nobody@example.com", "longenough"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.Login(ctx, "worker@example.com", "wrongpassword"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}

	if err := s.Repo.SetUserActive(ctx, u.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := s.Login(ctx, "worker@example.com", "longenough"); !errors.Is(err, auth.ErrInactiveUser) {
		t.Fatalf("inactive user: expected ErrInactiveUser, got %v", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	s, ctx := newTestService(t)
	if _, err := s.Register(ctx, "worker@example.com", "longenough", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := s.Login(ctx, "worker@example.com", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	rotated, err := s.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatalf("refresh token not rotated")
	}

	// the presented token is single use
	if _, err := s.Refresh(ctx, pair.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("reused refresh token: expected ErrInvalidToken, got %v", err)
	}
	// the rotated token still works
	if _, err := s.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("rotated token rejected: %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	s, ctx := newTestService(t)
	if _, err := s.Register(ctx, "worker@example.com", "longenough", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := s.Login(ctx, "worker@example.com", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := s.Refresh(ctx, pair.AccessToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("access token in refresh slot: expected ErrInvalidToken, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	s, ctx := newTestService(t)
	if _, err := s.Register(ctx, "worker@example.com", "longenough", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := s.Login(ctx, "worker@example.com", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := s.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := s.Refresh(ctx, pair.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("refresh after logout: expected ErrInvalidToken, got %v", err)
	}
}
