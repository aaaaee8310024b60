package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	jwt "github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-contract-backend/internal/domain"
)

func newServiceDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("service_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	db := newServiceDB(t, &domain.User{})
	return NewAuthService(db, "test-secret", time.Hour)
}

func TestRegister_Validation(t *testing.T) {
	s := newAuthService(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, "ab", "password123"); err != ErrInvalidUsername {
		t.Fatalf("short username: got %v", err)
	}
	if _, err := s.Register(ctx, "alice", "short"); err != ErrWeakPassword {
		t.Fatalf("weak password: got %v", err)
	}
}

func TestRegister_HashesPassword(t *testing.T) {
	s := newAuthService(t)
	u, err := s.Register(context.Background(), "  alice  ", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Username != "alice" {
		t.Fatalf("username must be trimmed, got %q", u.Username)
	}
	if u.PasswordHash == "password123" || u.PasswordHash == "" {
		t.Fatalf("password must be stored hashed")
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	s := newAuthService(t)
	ctx := context.Background()
	if _, err := s.Register(ctx, "alice", "password123"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := s.Register(ctx, "alice", "different-pass"); err != ErrUsernameTaken {
		t.Fatalf("duplicate: got %v", err)
	}
}

func TestLogin_RoundTrip_TokenCarriesUserID(t *testing.T) {
	s := newAuthService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	token, err := s.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if claims.Subject != u.ID {
		t.Fatalf("subject = %q, want %q", claims.Subject, u.ID)
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > time.Hour+time.Minute {
		t.Fatalf("expiry must honor the configured TTL: %v", claims.ExpiresAt)
	}
}

func TestLogin_InvalidCredentials_Indistinguishable(t *testing.T) {
	s := newAuthService(t)
	ctx := context.Background()
	if _, err := s.Register(ctx, "alice", "password123"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := s.Login(ctx, "alice", "wrong-password"); err != ErrInvalidCredentials {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := s.Login(ctx, "nobody", "password123"); err != ErrInvalidCredentials {
		t.Fatalf("unknown user: got %v", err)
	}
}
