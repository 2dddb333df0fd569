package version

import "testing"

func TestParseSemver(t *testing.T) {
	tests := []struct {
		in   string
		want [3]int
	}{
		{"v1.2.3", [3]int{1, 2, 3}},
		{"1.2.3", [3]int{1, 2, 3}},
		{"v0.4.0", [3]int{0, 4, 0}},
		{"0.4.0", [3]int{0, 4, 0}},

		// Prerelease and build metadata are stripped.
		{"v1.0.0-beta", [3]int{1, 0, 0}},
		{"v2.0.0-rc.1", [3]int{2, 0, 0}},
		{"1.0.0-alpha.2", [3]int{1, 0, 0}},
		{"v1.0.0+build123", [3]int{1, 0, 0}},
		{"1.0.0+exp.sha.5114f85", [3]int{1, 0, 0}},
		{"v1.0.0-beta+build123", [3]int{1, 0, 0}},

		// Missing parts default to zero.
		{"2.0", [3]int{2, 0, 0}},
		{"1", [3]int{1, 0, 0}},
		{"v5", [3]int{5, 0, 0}},

		// Garbage parses to all zeros.
		{"", [3]int{0, 0, 0}},
		{"devel", [3]int{0, 0, 0}},
		{"no.numbers.here", [3]int{0, 0, 0}},
		{"1.2.3.4", [3]int{0, 0, 0}},

		{"v99.99.99", [3]int{99, 99, 99}},
		{"1000.0.0", [3]int{1000, 0, 0}},
		{"v0.0.0", [3]int{0, 0, 0}},
		{"0.0.1", [3]int{0, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseSemver(tt.in); got != tt.want {
				t.Errorf("parseSemver(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsNewer(t *testing.T) {
	tests := []struct {
		latest  string
		current string
		want    bool
	}{
		{"v1.0.0", "v0.9.9", true},
		{"v2.0.0", "v1.9.9", true},
		{"v10.0.0", "v9.9.9", true},

		{"v0.2.0", "v0.1.0", true},
		{"v1.5.0", "v1.4.9", true},
		{"v0.10.0", "v0.9.0", true},

		{"v0.1.1", "v0.1.0", true},
		{"v0.1.10", "v0.1.9", true},

		{"v0.4.0", "v0.4.0", false},
		{"v1.2.3", "v1.2.3", false},

		// Current already ahead.
		{"v0.1.0", "v0.2.0", false},
		{"v1.0.0", "v1.0.1", false},

		// Same core version, prerelease tags ignored either way.
		{"v1.0.0-beta", "v1.0.0", false},
		{"v1.0.0", "v1.0.0-beta", false},
		{"v2.0.0-rc.1", "v1.9.9", true},

		// Build metadata ignored.
		{"v1.0.0+build1", "v1.0.0+build2", false},
		{"v1.0.0+a", "v0.9.9", true},

		// With and without the v prefix.
		{"1.0.0", "v0.9.9", true},
		{"v1.0.0", "0.9.9", true},
		{"1.0.0", "0.9.9", true},

		{"v0.0.0", "v0.0.0", false},
		{"v0.0.1", "v0.0.0", true},
		{"v99.0.0", "v98.99.99", true},
		{"v1.100.0", "v1.99.99", true},
	}

	for _, tt := range tests {
		t.Run(tt.latest+"_vs_"+tt.current, func(t *testing.T) {
			if got := isNewer(tt.latest, tt.current); got != tt.want {
				t.Errorf("isNewer(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.want)
			}
		})
	}
}
