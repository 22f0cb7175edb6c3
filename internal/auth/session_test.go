package auth

import (
	"testing"
	"time"
)

func TestCreateAndValidate(t *testing.T) {
	manager := NewSessionManager(time.Hour)
	token, expiresAt, err := manager.Create("user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}

	userID, ok, err := manager.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !ok || userID != "user-1" {
		t.Fatalf("expected user-1, got %q ok=%v", userID, ok)
	}
}

func TestValidateRejectsUnknownAndEmptyTokens(t *testing.T) {
	manager := NewSessionManager(time.Hour)
	if _, ok, err := manager.Validate(""); err != nil || ok {
		t.Fatalf("empty token: ok=%v err=%v", ok, err)
	}
	if _, ok, err := manager.Validate("not-a-token"); err != nil || ok {
		t.Fatalf("unknown token: ok=%v err=%v", ok, err)
	}
}

func TestValidateExpiresSessions(t *testing.T) {
	store := NewMemorySessionStore()
	manager := NewSessionManager(time.Hour, WithStore(store))
	token, _, err := manager.Create("user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	manager.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok, err := manager.Validate(token); err != nil || ok {
		t.Fatalf("expected expired session to be rejected, ok=%v err=%v", ok, err)
	}

	// Expired entries are deleted on access.
	hash, err := hashSessionToken(token)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, found, _ := store.Get(hash); found {
		t.Fatal("expected expired session to be removed from the store")
	}
}

func TestStoreHoldsOnlyTokenHashes(t *testing.T) {
	store := NewMemorySessionStore()
	manager := NewSessionManager(time.Hour, WithStore(store))
	token, _, err := manager.Create("user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, found, _ := store.Get(token); found {
		t.Fatal("plaintext token must not be a store key")
	}
	hash, err := hashSessionToken(token)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, found, _ := store.Get(hash); !found {
		t.Fatal("expected hashed token in the store")
	}
}

func TestRevokeAndPurge(t *testing.T) {
	manager := NewSessionManager(time.Hour)
	token, _, err := manager.Create("user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := manager.Revoke(token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, ok, _ := manager.Validate(token); ok {
		t.Fatal("expected revoked token to be invalid")
	}

	store := NewMemorySessionStore()
	purger := NewSessionManager(time.Minute, WithStore(store))
	if _, _, err := purger.Create("user-2"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	purger.now = func() time.Time { return time.Now().Add(time.Hour) }
	if err := purger.PurgeExpired(); err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	purger.now = time.Now
	if _, _, err := purger.Create("user-3"); err != nil {
		t.Fatalf("Create after purge: %v", err)
	}
}
