package gitsource

import (
	"regexp"
	"strconv"
	"strings"
)

// RefKind classifies a git ref for update semantics
type RefKind int

const (
	// KindBranch is mutable; update follows the remote tip
	KindBranch RefKind = iota
	// KindVersionTag matches a recognized version pattern; update switches
	// to the highest newer tag in the same family
	KindVersionTag
	// KindTag is a non-version tag (e.g. "stable"); immutable
	KindTag
	// KindCommit is an explicit commit hash; immutable
	KindCommit
)

func (k RefKind) String() string {
	switch k {
	case KindBranch:
		return "branch"
	case KindVersionTag:
		return "version tag"
	case KindTag:
		return "tag"
	case KindCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// Version is a parsed major.minor.patch; missing components default to 0
type Version struct {
	Major, Minor, Patch int
}

// Compare returns -1, 0 or 1 ordering versions numerically
func (v Version) Compare(o Version) int {
	pairs := [3][2]int{{v.Major, o.Major}, {v.Minor, o.Minor}, {v.Patch, o.Patch}}
	for _, p := range pairs {
		if p[0] < p[1] {
			return -1
		}
		if p[0] > p[1] {
			return 1
		}
	}
	return 0
}

// Tag pattern families. A tag only ever updates to a tag of the same family,
// so "v2.0.0" is never offered to a plugin pinned at "release-1.0.0".
// date is listed before plain so calendar tags get their own family and
// never compete with semantic versions
var tagFamilies = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"date", regexp.MustCompile(`^(\d{4})\.(\d{2})\.(\d{2})$`)},
	{"v", regexp.MustCompile(`^v(\d+)(?:\.(\d+))?(?:\.(\d+))?$`)},
	{"plain", regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?$`)},
	{"release-", regexp.MustCompile(`^release-(\d+)(?:\.(\d+))?(?:\.(\d+))?$`)},
	{"release/", regexp.MustCompile(`^release/(\d+)(?:\.(\d+))?(?:\.(\d+))?$`)},
}

var commitPattern = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

// ParseVersionTag parses a tag against the known pattern families.
// Returns the parsed version, the family name and whether it matched.
func ParseVersionTag(tag string) (Version, string, bool) {
	for _, f := range tagFamilies {
		m := f.pattern.FindStringSubmatch(tag)
		if m == nil {
			continue
		}
		v := Version{Major: atoiOrZero(m[1])}
		if len(m) > 2 {
			v.Minor = atoiOrZero(m[2])
		}
		if len(m) > 3 {
			v.Patch = atoiOrZero(m[3])
		}
		return v, f.name, true
	}
	return Version{}, "", false
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// IsVersionTag reports whether the ref matches a recognized version pattern
func IsVersionTag(ref string) bool {
	_, _, ok := ParseVersionTag(ref)
	return ok
}

// IsCommitHash reports whether the ref looks like an abbreviated or full hash
func IsCommitHash(ref string) bool {
	return commitPattern.MatchString(strings.ToLower(ref)) && ref == strings.ToLower(ref)
}

// LatestInFamily filters tags to the family of current and returns the
// highest tag strictly newer than current. ok is false when current is not
// a version tag or no newer tag exists.
func LatestInFamily(tags []string, current string) (string, bool) {
	cur, family, isVersion := ParseVersionTag(current)
	if !isVersion {
		return "", false
	}

	best := cur
	bestTag := ""
	for _, t := range tags {
		v, f, ok := ParseVersionTag(t)
		if !ok || f != family {
			continue
		}
		if v.Compare(best) > 0 {
			best = v
			bestTag = t
		}
	}

	return bestTag, bestTag != ""
}

// LatestVersionTag returns the highest version tag across all families,
// used at install time when a registry entry declares a versioning scheme.
func LatestVersionTag(tags []string) (string, bool) {
	var best Version
	bestTag := ""
	for _, t := range tags {
		v, _, ok := ParseVersionTag(t)
		if !ok {
			continue
		}
		if bestTag == "" || v.Compare(best) > 0 {
			best = v
			bestTag = t
		}
	}
	return bestTag, bestTag != ""
}
