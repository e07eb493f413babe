package auth

import (
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"collision-server/internal/database"
)

func newTestAuth(t *testing.T) (*Auth, *database.DB) {
	t.Helper()
	bcryptCost = bcrypt.MinCost
	db, err := database.OpenDB(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAuth(db), db
}

func TestRegisterLoginValidate(t *testing.T) {
	a, _ := newTestAuth(t)

	id, token, err := a.Register("relay-eu", "correct horse battery")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id == 0 || token == "" {
		t.Fatalf("Register returned id=%d token=%q", id, token)
	}

	pid, name, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if pid != id || name != "relay-eu" {
		t.Errorf("claims = (%d, %q), want (%d, relay-eu)", pid, name, id)
	}

	loginID, _, err := a.Login("relay-eu", "correct horse battery", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if loginID != id {
		t.Errorf("Login id = %d, want %d", loginID, id)
	}

	if _, _, err := a.Login("relay-eu", "wrong secret value", "10.0.0.1"); !errors.Is(err, ErrInvalidLogin) {
		t.Errorf("bad secret err = %v, want ErrInvalidLogin", err)
	}
	if _, _, err := a.Login("nobody", "whatever secret", "10.0.0.1"); !errors.Is(err, ErrInvalidLogin) {
		t.Errorf("unknown peer err = %v, want ErrInvalidLogin", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	a, _ := newTestAuth(t)

	if _, _, err := a.Register("x", "long enough secret"); err == nil {
		t.Error("short name accepted")
	}
	if _, _, err := a.Register("relay", "short"); err == nil {
		t.Error("short secret accepted")
	}
	if _, _, err := a.Register("relay", "long enough secret"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := a.Register("relay", "long enough secret"); !errors.Is(err, ErrNameTaken) {
		t.Errorf("duplicate err = %v, want ErrNameTaken", err)
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	a, _ := newTestAuth(t)
	b, _ := newTestAuth(t)

	_, token, err := a.Register("relay", "long enough secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := b.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign token err = %v, want ErrInvalidToken", err)
	}
	if _, _, err := a.ValidateToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token err = %v, want ErrInvalidToken", err)
	}
}

func TestSecretPersistsAcrossInstances(t *testing.T) {
	a, db := newTestAuth(t)
	_, token, err := a.Register("relay", "long enough secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	again := NewAuth(db)
	if _, _, err := again.ValidateToken(token); err != nil {
		t.Errorf("token rejected after reload: %v", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	a, _ := newTestAuth(t)
	for i := 0; i < maxLoginAttempts; i++ {
		if _, _, err := a.Login("nobody", "whatever secret", "10.0.0.9"); errors.Is(err, ErrRateLimited) {
			t.Fatalf("attempt %d rate limited early", i+1)
		}
	}
	if _, _, err := a.Login("nobody", "whatever secret", "10.0.0.9"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
	// Other addresses are unaffected.
	if _, _, err := a.Login("nobody", "whatever secret", "10.0.0.10"); errors.Is(err, ErrRateLimited) {
		t.Error("separate IP was rate limited")
	}
}
