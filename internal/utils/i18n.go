package utils

// Minimal server-side i18n for fixed keys. Dashboard strings live in the
// frontend; the server only localizes what it originates itself.

var translations = map[string]map[string]string{
	"en": {
		"health.ok":          "ok",
		"error.unauthorized": "authentication required",
		"anonymity.blocked":  "not enough responses yet to show results for this unit",
		"survey.thanks":      "thank you, your answers were recorded",
		"survey.token_used":  "this invitation link was already used",
	},
	"de": {
		"health.ok":          "ok",
		"error.unauthorized": "Anmeldung erforderlich",
		"anonymity.blocked":  "noch nicht genug Antworten, um Ergebnisse für diese Einheit anzuzeigen",
		"survey.thanks":      "danke, Ihre Antworten wurden gespeichert",
		"survey.token_used":  "dieser Einladungslink wurde bereits verwendet",
	},
}

// T returns the translated string for key in locale; falls back to English,
// then to the key itself.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := translations["en"][key]; ok {
		return v
	}
	return key
}
