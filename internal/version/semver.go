package version

import (
	"strconv"
	"strings"
)

// parseSemver extracts the numeric major.minor.patch triple from a version
// string. Prerelease and build metadata are ignored; missing parts default
// to zero and unparsable versions come back as all zeroes.
func parseSemver(v string) [3]int {
	var out [3]int

	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return out
	}

	parts := strings.Split(v, ".")
	if len(parts) > 3 {
		return [3]int{}
	}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return [3]int{}
		}
		out[i] = n
	}
	return out
}

// isNewer reports whether latest is a strictly newer core version than
// current. Prerelease tags are not compared, so v1.0.0-beta and v1.0.0 are
// considered equal.
func isNewer(latest, current string) bool {
	l := parseSemver(latest)
	c := parseSemver(current)
	for i := 0; i < 3; i++ {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}
