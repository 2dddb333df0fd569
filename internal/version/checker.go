package version

import "time"

// CheckCached returns the update status for currentVersion, consulting the
// on-disk cache before hitting the network. Network errors are swallowed;
// the caller only ever sees "update available" or nothing.
func CheckCached(currentVersion string) *CheckResult {
	if IsDevelopmentVersion(currentVersion) {
		return nil
	}

	if cached, err := LoadCache(); err == nil && IsCacheValid(cached, currentVersion) {
		if !cached.HasUpdate {
			return nil
		}
		return &CheckResult{
			CurrentVersion: currentVersion,
			LatestVersion:  cached.LatestVersion,
			HasUpdate:      true,
		}
	}

	result := Check(currentVersion)
	if result.Error != nil {
		return nil
	}

	// Only successful checks are cached so a flaky network retries soon.
	_ = SaveCache(&CacheEntry{
		LatestVersion:  result.LatestVersion,
		CurrentVersion: currentVersion,
		CheckedAt:      time.Now(),
		HasUpdate:      result.HasUpdate,
	})

	if !result.HasUpdate {
		return nil
	}
	return &result
}
