package main

import (
	"embed"

	"github.com/jeandeaual/go-locale"

	"github.com/tagforge/plugman/cmd"
	"github.com/tagforge/plugman/internal/config"
	"github.com/tagforge/plugman/internal/i18n"
)

//go:embed locales/*.json
var localeFS embed.FS

func main() {
	i18n.Init(localeFS, getLocale())

	cmd.Execute()
}

// getLocale returns the configured locale, falling back to system detection
func getLocale() string {
	store := config.NewStore(config.DefaultPaths())
	cfg, err := store.Load()
	if err == nil && cfg.Locale != "" && cfg.Locale != "auto" {
		return cfg.Locale
	}

	userLocale, err := locale.GetLocale()
	if err != nil || userLocale == "" {
		return "en-US"
	}
	return userLocale
}
