package clientconfig

import (
	"testing"
	"time"
)

func withTempHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestAuthRoundTrip(t *testing.T) {
	withTempHome(t)

	creds := &AuthCredentials{
		APIKey:       "inv_live_abc123",
		BusinessID:   "biz_1",
		BusinessName: "Bodega Central",
		ServerURL:    "https://sync.example.com",
		DeviceID:     "dev-1",
	}
	if err := SaveAuth(creds); err != nil {
		t.Fatalf("save auth: %v", err)
	}

	loaded, err := LoadAuth()
	if err != nil {
		t.Fatalf("load auth: %v", err)
	}
	if loaded == nil || loaded.APIKey != creds.APIKey || loaded.BusinessID != creds.BusinessID {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
	if !IsAuthenticated() {
		t.Error("expected IsAuthenticated after save")
	}

	if err := ClearAuth(); err != nil {
		t.Fatalf("clear auth: %v", err)
	}
	if IsAuthenticated() {
		t.Error("still authenticated after clear")
	}
	// Clearing twice is fine.
	if err := ClearAuth(); err != nil {
		t.Errorf("second clear: %v", err)
	}
}

func TestLoadAuthMissingFile(t *testing.T) {
	withTempHome(t)

	creds, err := LoadAuth()
	if err != nil {
		t.Fatalf("load auth: %v", err)
	}
	if creds != nil {
		t.Errorf("expected nil creds, got %+v", creds)
	}
}

func TestDeviceIDIsStable(t *testing.T) {
	withTempHome(t)

	first, err := GetDeviceID()
	if err != nil {
		t.Fatalf("get device id: %v", err)
	}
	if first == "" {
		t.Fatal("empty device id")
	}
	second, err := GetDeviceID()
	if err != nil {
		t.Fatalf("get device id again: %v", err)
	}
	if first != second {
		t.Errorf("device id changed between calls: %s vs %s", first, second)
	}
}

func TestEnvOverrides(t *testing.T) {
	withTempHome(t)
	t.Setenv("INVENTA_SYNC_URL", "http://env.example.com")
	t.Setenv("INVENTA_API_KEY", "inv_live_env")
	t.Setenv("INVENTA_SYNC_INTERVAL", "90s")

	if got := GetServerURL(); got != "http://env.example.com" {
		t.Errorf("server url = %q", got)
	}
	if got := GetAPIKey(); got != "inv_live_env" {
		t.Errorf("api key = %q", got)
	}
	if got := GetSyncInterval(); got != 90*time.Second {
		t.Errorf("interval = %v", got)
	}
}

func TestSyncIntervalDefault(t *testing.T) {
	withTempHome(t)
	t.Setenv("INVENTA_SYNC_INTERVAL", "")

	if got := GetSyncInterval(); got != 30*time.Second {
		t.Errorf("default interval = %v", got)
	}
}
