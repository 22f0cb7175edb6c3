package main

import (
	"reflect"
	"testing"
	"time"
)

func TestResolveStorageDriver(t *testing.T) {
	driver, err := resolveStorageDriver("", "", "postgres://example")
	if err != nil {
		t.Fatalf("resolveStorageDriver: %v", err)
	}
	if driver != "postgres" {
		t.Fatalf("expected DSN to imply postgres, got %q", driver)
	}

	driver, err = resolveStorageDriver("", "", "")
	if err != nil {
		t.Fatalf("resolveStorageDriver: %v", err)
	}
	if driver != "json" {
		t.Fatalf("expected json default, got %q", driver)
	}

	driver, err = resolveStorageDriver("JSON", "", "postgres://example")
	if err != nil {
		t.Fatalf("resolveStorageDriver: %v", err)
	}
	if driver != "json" {
		t.Fatalf("expected explicit flag to win, got %q", driver)
	}
}

func TestResolveSessionStoreConfig(t *testing.T) {
	cfg, err := resolveSessionStoreConfig("", "", "json", "", "", "")
	if err != nil {
		t.Fatalf("resolveSessionStoreConfig: %v", err)
	}
	if cfg.Driver != "memory" {
		t.Fatalf("expected memory default, got %q", cfg.Driver)
	}

	cfg, err = resolveSessionStoreConfig("", "", "postgres", "postgres://storage", "", "")
	if err != nil {
		t.Fatalf("resolveSessionStoreConfig: %v", err)
	}
	if cfg.Driver != "postgres" || cfg.DSN != "postgres://storage" {
		t.Fatalf("expected session store to follow the storage DSN, got %+v", cfg)
	}

	cfg, err = resolveSessionStoreConfig("", "", "postgres", "postgres://storage", "postgres://sessions", "")
	if err != nil {
		t.Fatalf("resolveSessionStoreConfig: %v", err)
	}
	if cfg.DSN != "postgres://sessions" {
		t.Fatalf("expected dedicated session DSN to win, got %q", cfg.DSN)
	}

	if _, err := resolveSessionStoreConfig("postgres", "", "json", "", "", ""); err == nil {
		t.Fatal("expected error for postgres session store without DSN")
	}
	if _, err := resolveSessionStoreConfig("etcd", "", "json", "", "", ""); err == nil {
		t.Fatal("expected error for unknown session store driver")
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" a, b ,, c ")
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatal("expected nil for blank input")
	}
}

func TestResolveDurationPrefersFlagThenEnv(t *testing.T) {
	if got := resolveDuration(5*time.Second, "REELCAST_TEST_DURATION", time.Minute); got != 5*time.Second {
		t.Fatalf("expected flag value, got %v", got)
	}
	t.Setenv("REELCAST_TEST_DURATION", "30s")
	if got := resolveDuration(0, "REELCAST_TEST_DURATION", time.Minute); got != 30*time.Second {
		t.Fatalf("expected env value, got %v", got)
	}
	t.Setenv("REELCAST_TEST_DURATION", "")
	if got := resolveDuration(0, "REELCAST_TEST_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "value", "later"); got != "value" {
		t.Fatalf("expected first usable value, got %q", got)
	}
	if got := firstNonEmpty("", "  "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
