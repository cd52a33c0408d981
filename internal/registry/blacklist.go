package registry

import (
	"regexp"

	"go.uber.org/zap"
)

// blacklistMatcher holds the deny-list with its URL patterns compiled once
type blacklistMatcher struct {
	byUUID   map[string]string // uuid -> reason
	byURL    map[string]string // normalized url -> reason
	patterns []compiledPattern
}

type compiledPattern struct {
	re     *regexp.Regexp
	reason string
}

func newBlacklistMatcher(entries []BlacklistEntry, log *zap.Logger) *blacklistMatcher {
	m := &blacklistMatcher{
		byUUID: make(map[string]string),
		byURL:  make(map[string]string),
	}

	for _, e := range entries {
		switch {
		case e.UUID != "":
			m.byUUID[e.UUID] = e.Reason
		case e.URL != "":
			m.byURL[NormalizeURL(e.URL)] = e.Reason
		case e.URLPattern != "":
			re, err := regexp.Compile(e.URLPattern)
			if err != nil {
				// a broken pattern must not unblock everything else
				log.Warn("skipping unparseable blacklist pattern",
					zap.String("pattern", e.URLPattern),
					zap.Error(err),
				)
				continue
			}
			m.patterns = append(m.patterns, compiledPattern{re: re, reason: e.Reason})
		}
	}

	return m
}

// match checks uuid first, then exact URL, then patterns against the
// normalized URL. The first hit wins.
func (m *blacklistMatcher) match(url, uuid string) (bool, string) {
	if uuid != "" {
		if reason, ok := m.byUUID[uuid]; ok {
			return true, reason
		}
	}

	if url == "" {
		return false, ""
	}

	normalized := NormalizeURL(url)
	if reason, ok := m.byURL[normalized]; ok {
		return true, reason
	}

	for _, p := range m.patterns {
		if p.re.MatchString(normalized) {
			return true, p.reason
		}
	}

	return false, ""
}
