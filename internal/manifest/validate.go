package manifest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tagforge/plugman/internal/plugerr"
)

const (
	maxNameLen            = 100
	maxDescriptionLen     = 200
	maxLongDescriptionLen = 2000
)

// Validate checks every constraint and returns all violations in one pass,
// so a single run reports everything wrong with the manifest.
func Validate(m *Manifest) []plugerr.Violation {
	var vs []plugerr.Violation

	add := func(field, format string, args ...any) {
		vs = append(vs, plugerr.Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if m.UUID == "" {
		add("uuid", "required field is missing")
	} else if u, err := uuid.Parse(m.UUID); err != nil {
		add("uuid", "not a valid UUID: %v", err)
	} else if u.Version() != 4 {
		add("uuid", "must be UUIDv4, got version %d", u.Version())
	}

	// lengths are character counts, not byte counts; names and
	// descriptions are routinely non-ASCII
	switch n := utf8.RuneCountInString(m.Name); {
	case n == 0:
		add("name", "required field is missing")
	case n > maxNameLen:
		add("name", "must be at most %d characters, got %d", maxNameLen, n)
	}

	switch n := utf8.RuneCountInString(m.Description); {
	case n == 0:
		add("description", "required field is missing")
	case n > maxDescriptionLen:
		add("description", "must be at most %d characters, got %d", maxDescriptionLen, n)
	}
	if strings.ContainsAny(m.Description, "\r\n") {
		add("description", "must be a single line")
	}

	if n := utf8.RuneCountInString(m.LongDescription); n > maxLongDescriptionLen {
		add("long_description", "must be at most %d characters, got %d", maxLongDescriptionLen, n)
	}

	if len(m.API) == 0 {
		add("api", "must list at least one supported api version")
	} else {
		for i, v := range m.API {
			if strings.TrimSpace(v) == "" {
				add("api", "entry %d is empty", i)
			}
		}
	}

	for _, c := range m.Categories {
		if !KnownCategories[c] {
			add("categories", "unknown category %q", c)
		}
	}

	if m.NameI18n != nil && len(m.NameI18n) == 0 {
		add("name_i18n", "translation table must not be empty")
	}
	if m.DescriptionI18n != nil && len(m.DescriptionI18n) == 0 {
		add("description_i18n", "translation table must not be empty")
	}

	return vs
}
