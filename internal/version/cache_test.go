package version

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsCacheValid(t *testing.T) {
	now := time.Now()
	entry := func(checkedAt time.Time, current string) *CacheEntry {
		return &CacheEntry{
			LatestVersion:  "v0.5.0",
			CurrentVersion: current,
			CheckedAt:      checkedAt,
			HasUpdate:      true,
		}
	}

	tests := []struct {
		name           string
		entry          *CacheEntry
		currentVersion string
		want           bool
	}{
		{"nil entry", nil, "v0.4.0", false},
		{"fresh, matching version", entry(now, "v0.4.0"), "v0.4.0", true},
		{"older than ttl", entry(now.Add(-7*time.Hour), "v0.4.0"), "v0.4.0", false},
		{"binary upgraded since check", entry(now, "v0.4.0"), "v0.5.0", false},
		{"binary downgraded since check", entry(now, "v0.4.0"), "v0.3.0", false},
		{"just inside ttl", entry(now.Add(-cacheTTL+time.Minute), "v0.4.0"), "v0.4.0", true},
		{"exactly at ttl", entry(now.Add(-cacheTTL), "v0.4.0"), "v0.4.0", false},
		{
			"fresh with no update",
			&CacheEntry{
				LatestVersion:  "v0.4.0",
				CurrentVersion: "v0.4.0",
				CheckedAt:      now,
				HasUpdate:      false,
			},
			"v0.4.0",
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCacheValid(tt.entry, tt.currentVersion); got != tt.want {
				t.Errorf("IsCacheValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	// Round to seconds; the timestamp goes through JSON.
	saved := &CacheEntry{
		LatestVersion:  "v0.5.0",
		CurrentVersion: "v0.4.0",
		CheckedAt:      time.Now().Round(time.Second),
		HasUpdate:      true,
	}
	if err := SaveCache(saved); err != nil {
		t.Fatalf("save cache: %v", err)
	}
	if _, err := os.Stat(cachePath()); err != nil {
		t.Fatalf("cache file missing after save: %v", err)
	}

	loaded, err := LoadCache()
	if err != nil {
		t.Fatalf("load cache: %v", err)
	}
	if loaded.LatestVersion != saved.LatestVersion {
		t.Errorf("latest = %q, want %q", loaded.LatestVersion, saved.LatestVersion)
	}
	if loaded.CurrentVersion != saved.CurrentVersion {
		t.Errorf("current = %q, want %q", loaded.CurrentVersion, saved.CurrentVersion)
	}
	if !loaded.HasUpdate {
		t.Error("has_update lost in round trip")
	}
	if !loaded.CheckedAt.Equal(saved.CheckedAt) {
		t.Errorf("checked_at = %v, want %v", loaded.CheckedAt, saved.CheckedAt)
	}
}

func TestLoadCacheErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadCache(); err == nil {
			t.Error("expected error for missing cache file")
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := cachePath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(`{not json`), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadCache(); err == nil {
			t.Error("expected error for corrupt cache file")
		}
	})
}

func TestSaveCacheCreatesConfigDir(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "fresh", "home"))

	entry := &CacheEntry{
		LatestVersion:  "v0.5.0",
		CurrentVersion: "v0.4.0",
		CheckedAt:      time.Now(),
		HasUpdate:      true,
	}
	if err := SaveCache(entry); err != nil {
		t.Fatalf("save cache into fresh home: %v", err)
	}
	if _, err := os.Stat(cachePath()); err != nil {
		t.Fatalf("cache file missing: %v", err)
	}
}
