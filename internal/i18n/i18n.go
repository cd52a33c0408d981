// Package i18n localizes user-facing CLI and TUI strings from the
// embedded locale catalogs. English is the fallback for any message
// a locale does not carry.
package i18n

import (
	"embed"
	"encoding/json"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

var (
	bundle    *i18n.Bundle
	localizer *i18n.Localizer
)

// Init loads the locale catalogs from localeFS and selects lang as the
// active locale. Catalogs that fail to load are skipped; English
// message IDs still resolve through the fallback path.
func Init(localeFS embed.FS, lang string) error {
	bundle = i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	bundle.LoadMessageFileFS(localeFS, "locales/en-us.json")
	bundle.LoadMessageFileFS(localeFS, "locales/ko-kr.json")

	localizer = i18n.NewLocalizer(bundle, lang)
	return nil
}

// T resolves messageID in the active locale. templateData fills the
// message template and pluralCount, when given, picks the plural form.
// An unresolvable ID comes back verbatim so output never goes blank.
func T(messageID string, templateData map[string]interface{}, pluralCount ...int) string {
	config := &i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: templateData,
	}
	if len(pluralCount) > 0 {
		config.PluralCount = pluralCount[0]
	}

	msg, err := localizer.Localize(config)
	if err != nil {
		return messageID
	}
	return msg
}

// SetLocale switches the active locale for subsequent T calls.
func SetLocale(lang string) {
	localizer = i18n.NewLocalizer(bundle, lang)
}
