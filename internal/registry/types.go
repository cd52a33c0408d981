package registry

import (
	"strconv"
	"strings"
)

// TrustLevel is the registry-assigned confidence tier of a plugin
type TrustLevel string

const (
	TrustOfficial  TrustLevel = "official"
	TrustTrusted   TrustLevel = "trusted"
	TrustCommunity TrustLevel = "community"
	// TrustUnregistered is derived client-side when no entry matches;
	// it never appears in the registry payload
	TrustUnregistered TrustLevel = "unregistered"
)

// Ref is a registry-advertised installable ref with its API compatibility window
type Ref struct {
	Name          string `json:"name"`
	MinAPIVersion string `json:"min_api_version,omitempty"`
	MaxAPIVersion string `json:"max_api_version,omitempty"`
	Description   string `json:"description,omitempty"`
}

// Entry is a registry-advertised plugin
type Entry struct {
	ID               string     `json:"id"`
	UUID             string     `json:"uuid"`
	GitURL           string     `json:"git_url"`
	Refs             []Ref      `json:"refs,omitempty"`
	TrustLevel       TrustLevel `json:"trust_level"`
	VersioningScheme string     `json:"versioning_scheme,omitempty"`
	RedirectFrom     []string   `json:"redirect_from,omitempty"`
	RedirectFromUUID []string   `json:"redirect_from_uuid,omitempty"`
}

// BlacklistEntry blocks installation by exact UUID, exact URL or URL pattern
type BlacklistEntry struct {
	UUID       string `json:"uuid,omitempty"`
	URL        string `json:"url,omitempty"`
	URLPattern string `json:"url_pattern,omitempty"`
	Reason     string `json:"reason"`
}

// Document is the registry payload fetched over HTTPS
type Document struct {
	APIVersion  string           `json:"api_version"`
	LastUpdated string           `json:"last_updated"`
	Plugins     []Entry          `json:"plugins"`
	Blacklist   []BlacklistEntry `json:"blacklist"`
}

// NormalizeURL canonicalizes a git URL for comparison: SSH forms become
// https, scheme and host are lowercased, trailing slash and .git stripped.
func NormalizeURL(url string) string {
	url = strings.TrimSpace(url)

	if strings.HasPrefix(url, "git@") {
		url = strings.TrimPrefix(url, "git@")
		url = strings.Replace(url, ":", "/", 1)
		url = "https://" + url
	}

	url = strings.TrimSuffix(url, "/")
	url = strings.TrimSuffix(url, ".git")

	if i := strings.Index(url, "://"); i >= 0 {
		scheme := strings.ToLower(url[:i])
		rest := url[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			rest = strings.ToLower(rest[:j]) + rest[j:]
		} else {
			rest = strings.ToLower(rest)
		}
		url = scheme + "://" + rest
	}

	return url
}

// CompareAPIVersions orders dotted numeric versions like "3.1" and "3.10.2";
// missing components count as 0.
func CompareAPIVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y int
		if i < len(as) {
			x, _ = strconv.Atoi(strings.TrimSpace(as[i]))
		}
		if i < len(bs) {
			y, _ = strconv.Atoi(strings.TrimSpace(bs[i]))
		}
		if x < y {
			return -1
		}
		if x > y {
			return 1
		}
	}
	return 0
}

// SelectRef picks the first ref whose API window contains hostAPI, falling
// back to the first listed ref when none matches. Open-ended bounds admit
// any version. ok is false when the entry declares no refs at all.
func SelectRef(entry *Entry, hostAPI string) (string, bool) {
	if len(entry.Refs) == 0 {
		return "", false
	}

	for _, r := range entry.Refs {
		if r.MinAPIVersion != "" && CompareAPIVersions(hostAPI, r.MinAPIVersion) < 0 {
			continue
		}
		if r.MaxAPIVersion != "" && CompareAPIVersions(hostAPI, r.MaxAPIVersion) > 0 {
			continue
		}
		return r.Name, true
	}

	return entry.Refs[0].Name, true
}

// RefNames lists the declared ref names of an entry
func (e *Entry) RefNames() []string {
	names := make([]string, len(e.Refs))
	for i, r := range e.Refs {
		names[i] = r.Name
	}
	return names
}
