package manifest

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/tagforge/plugman/internal/plugerr"
)

// FileName is the manifest filename at the root of every plugin repository
const FileName = "tagforge-plugin.toml"

// Manifest is the declarative metadata a plugin ships at its repository root
type Manifest struct {
	UUID            string            `toml:"uuid"`
	Name            string            `toml:"name"`
	Description     string            `toml:"description"`
	LongDescription string            `toml:"long_description,omitempty"`
	API             []string          `toml:"api"`
	Authors         []string          `toml:"authors,omitempty"`
	Maintainers     []string          `toml:"maintainers,omitempty"`
	License         string            `toml:"license,omitempty"`
	Categories      []string          `toml:"categories,omitempty"`
	Homepage        string            `toml:"homepage,omitempty"`
	SourceLocale    string            `toml:"source_locale,omitempty"`
	NameI18n        map[string]string `toml:"name_i18n,omitempty"`
	DescriptionI18n map[string]string `toml:"description_i18n,omitempty"`
}

// Categories a manifest may declare
var KnownCategories = map[string]bool{
	"metadata":    true,
	"cover-art":   true,
	"file-format": true,
	"scripting":   true,
	"ui":          true,
	"web-service": true,
	"other":       true,
}

// Parse decodes a raw TOML manifest. Decoding errors are reported as a
// single-violation ManifestInvalidError so callers handle one error kind.
func Parse(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(raw, &m); err != nil {
		return nil, &plugerr.ManifestInvalidError{
			Violations: []plugerr.Violation{{Field: "", Message: "not valid TOML: " + err.Error()}},
		}
	}
	return &m, nil
}

// Load reads, parses and validates the manifest in a plugin checkout
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &plugerr.ManifestNotFoundError{Path: path}
		}
		return nil, err
	}

	m, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	if violations := Validate(m); len(violations) > 0 {
		return nil, &plugerr.ManifestInvalidError{Violations: violations}
	}

	return m, nil
}

// LocalizedName returns the name for a locale, falling back to the default
func (m *Manifest) LocalizedName(locale string) string {
	if n, ok := m.NameI18n[locale]; ok {
		return n
	}
	return m.Name
}

// LocalizedDescription returns the description for a locale, falling back to the default
func (m *Manifest) LocalizedDescription(locale string) string {
	if d, ok := m.DescriptionI18n[locale]; ok {
		return d
	}
	return m.Description
}
