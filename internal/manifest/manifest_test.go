package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagforge/plugman/internal/plugerr"
)

const validManifest = `
uuid = "b9a7f9d2-3c1e-4f6a-9d2b-1a2b3c4d5e6f"
name = "Cover Art Fetcher"
description = "Fetches cover art from public sources"
api = ["3.0", "3.1"]
authors = ["Jo Developer"]
license = "GPL-2.0-or-later"
categories = ["cover-art"]

[name_i18n]
de = "Coverbild-Abruf"

[description_i18n]
de = "Holt Coverbilder aus offenen Quellen"
`

func TestParseValid(t *testing.T) {
	m, err := Parse([]byte(validManifest))
	require.NoError(t, err)

	assert.Equal(t, "Cover Art Fetcher", m.Name)
	assert.Equal(t, []string{"3.0", "3.1"}, m.API)
	assert.Equal(t, "Coverbild-Abruf", m.LocalizedName("de"))
	assert.Equal(t, "Cover Art Fetcher", m.LocalizedName("fr"))
	assert.Empty(t, Validate(m))
}

func TestParseNotTOML(t *testing.T) {
	_, err := Parse([]byte("{ json: true }"))

	var inv *plugerr.ManifestInvalidError
	require.ErrorAs(t, err, &inv)
	require.Len(t, inv.Violations, 1)
}

func TestValidateReportsAllViolations(t *testing.T) {
	// Missing description and an 8-character uuid must surface as two
	// separate violations in a single call.
	m, err := Parse([]byte(`
uuid = "12345678"
name = "Broken"
api = ["3.0"]
`))
	require.NoError(t, err)

	vs := Validate(m)
	require.Len(t, vs, 2)

	fields := []string{vs[0].Field, vs[1].Field}
	assert.Contains(t, fields, "uuid")
	assert.Contains(t, fields, "description")
}

func TestValidateFieldRules(t *testing.T) {
	base := func() *Manifest {
		return &Manifest{
			UUID:        "b9a7f9d2-3c1e-4f6a-9d2b-1a2b3c4d5e6f",
			Name:        "ok",
			Description: "ok",
			API:         []string{"3.0"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Manifest)
		field  string
	}{
		{"uuid not v4", func(m *Manifest) { m.UUID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8" }, "uuid"},
		{"name too long", func(m *Manifest) { m.Name = strings.Repeat("x", 101) }, "name"},
		{"description too long", func(m *Manifest) { m.Description = strings.Repeat("x", 201) }, "description"},
		{"description multiline", func(m *Manifest) { m.Description = "two\nlines" }, "description"},
		{"long description too long", func(m *Manifest) { m.LongDescription = strings.Repeat("x", 2001) }, "long_description"},
		{"empty api", func(m *Manifest) { m.API = nil }, "api"},
		{"blank api entry", func(m *Manifest) { m.API = []string{" "} }, "api"},
		{"unknown category", func(m *Manifest) { m.Categories = []string{"games"} }, "categories"},
		{"empty name_i18n", func(m *Manifest) { m.NameI18n = map[string]string{} }, "name_i18n"},
		{"empty description_i18n", func(m *Manifest) { m.DescriptionI18n = map[string]string{} }, "description_i18n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(m)

			vs := Validate(m)
			require.NotEmpty(t, vs)
			assert.Equal(t, tt.field, vs[0].Field)
		})
	}
}

func TestValidateCountsCharactersNotBytes(t *testing.T) {
	m := &Manifest{
		UUID:        "b9a7f9d2-3c1e-4f6a-9d2b-1a2b3c4d5e6f",
		Name:        strings.Repeat("ü", 60),
		Description: strings.Repeat("한", 150),
		API:         []string{"3.0"},
	}

	// 60 and 150 characters are within bounds even though the UTF-8
	// encodings are 120 and 450 bytes
	assert.Empty(t, Validate(m))

	m.Name = strings.Repeat("ü", 101)
	vs := Validate(m)
	require.Len(t, vs, 1)
	assert.Equal(t, "name", vs[0].Field)
	assert.Contains(t, vs[0].Message, "got 101")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	var notFound *plugerr.ManifestNotFoundError
	require.True(t, errors.As(err, &notFound))

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(validManifest), 0644))

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "b9a7f9d2-3c1e-4f6a-9d2b-1a2b3c4d5e6f", m.UUID)
}
