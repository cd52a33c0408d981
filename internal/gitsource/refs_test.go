package gitsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersionTag(t *testing.T) {
	tests := []struct {
		tag     string
		want    Version
		family  string
		matches bool
	}{
		{"v1.2.3", Version{1, 2, 3}, "v", true},
		{"v1", Version{1, 0, 0}, "v", true},
		{"v1.2", Version{1, 2, 0}, "v", true},
		{"1.2.3", Version{1, 2, 3}, "plain", true},
		{"release-1.2.3", Version{1, 2, 3}, "release-", true},
		{"release/2.0", Version{2, 0, 0}, "release/", true},
		{"2024.01.15", Version{2024, 1, 15}, "date", true},
		{"stable", Version{}, "", false},
		{"latest", Version{}, "", false},
		{"v1.2.3-rc1", Version{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			v, family, ok := ParseVersionTag(tt.tag)
			require.Equal(t, tt.matches, ok)
			if ok {
				assert.Equal(t, tt.want, v)
				assert.Equal(t, tt.family, family)
			}
		})
	}
}

func TestVersionCompareIsNumeric(t *testing.T) {
	v9, _, _ := ParseVersionTag("v9.0.0")
	v10, _, _ := ParseVersionTag("v10.0.0")

	// numeric, not lexicographic: 10 > 9
	assert.Equal(t, 1, v10.Compare(v9))
	assert.Equal(t, -1, v9.Compare(v10))
	assert.Equal(t, 0, v9.Compare(v9))
}

func TestLatestInFamily(t *testing.T) {
	tags := []string{"v1.0.0", "v1.2.0", "v2.0.0", "stable", "release-3.0.0"}

	newest, ok := LatestInFamily(tags, "v1.0.0")
	require.True(t, ok)
	assert.Equal(t, "v2.0.0", newest)

	// release- family never sees v-prefixed tags
	_, ok = LatestInFamily(tags, "release-3.0.0")
	assert.False(t, ok)

	// non-version tag is immutable
	_, ok = LatestInFamily(tags, "stable")
	assert.False(t, ok)

	// already at the newest
	_, ok = LatestInFamily(tags, "v2.0.0")
	assert.False(t, ok)
}

func TestLatestVersionTag(t *testing.T) {
	tag, ok := LatestVersionTag([]string{"v0.9.0", "v1.10.0", "v1.9.0", "notes"})
	require.True(t, ok)
	assert.Equal(t, "v1.10.0", tag)

	_, ok = LatestVersionTag([]string{"stable", "beta"})
	assert.False(t, ok)
}

func TestIsCommitHash(t *testing.T) {
	assert.True(t, IsCommitHash("a1b2c3d"))
	assert.True(t, IsCommitHash("0123456789abcdef0123456789abcdef01234567"))
	assert.False(t, IsCommitHash("main"))
	assert.False(t, IsCommitHash("abc"))                // too short
	assert.False(t, IsCommitHash("A1B2C3D"))            // refs are matched case-sensitively
	assert.False(t, IsCommitHash("v1a2b3c"))
}
