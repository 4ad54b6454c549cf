// Package i18n provides the user-facing message catalog. Failure messages
// are deliberately vague ("please try again") so the API never leaks
// whether a record exists or who owns it.
package i18n

// Message keys used by the services.
const (
	KeyPleaseTryAgain  = "errors.pleaseTryAgain"
	KeyNoPermission    = "errors.noPermission"
	KeyMissingFields   = "errors.missingFields"
	KeyKnowledgeBaseOK = "knowledgeBase.updateSuccess"
)

// Catalog resolves a message key for a locale.
type Catalog interface {
	Lookup(locale, key string) string
}

// StaticCatalog is an in-memory Catalog with English fallback.
type StaticCatalog struct {
	messages map[string]map[string]string
}

// NewStaticCatalog returns the built-in catalog.
func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		messages: map[string]map[string]string{
			"en": {
				KeyPleaseTryAgain:  "Something went wrong. Please try again.",
				KeyNoPermission:    "You do not have permission to do that.",
				KeyMissingFields:   "Please fill in all required fields.",
				KeyKnowledgeBaseOK: "Knowledge base updated.",
			},
			"es": {
				KeyPleaseTryAgain:  "Algo salió mal. Por favor, inténtalo de nuevo.",
				KeyNoPermission:    "No tienes permiso para hacer eso.",
				KeyMissingFields:   "Por favor, completa todos los campos obligatorios.",
				KeyKnowledgeBaseOK: "Base de conocimientos actualizada.",
			},
		},
	}
}

// Lookup returns the message for the key in the given locale, falling back
// to English, then to the key itself.
func (c *StaticCatalog) Lookup(locale, key string) string {
	if msgs, ok := c.messages[locale]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	if msg, ok := c.messages["en"][key]; ok {
		return msg
	}
	return key
}
