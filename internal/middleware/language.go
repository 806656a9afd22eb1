package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/script-playground-api/internal/i18n"
)

// LocalLanguage holds the resolved content language code.
const LocalLanguage = "language"

// Language resolves the content language from the lang query parameter, the
// lang cookie and Accept-Language, in that order.
func Language() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(LocalLanguage, i18n.Resolve(c.Query("lang"), c.Cookies("lang"), c.Get(fiber.HeaderAcceptLanguage)))
		return c.Next()
	}
}

// RequestLanguage returns the language resolved by Language, or the default.
func RequestLanguage(c *fiber.Ctx) string {
	if value, ok := c.Locals(LocalLanguage).(string); ok && value != "" {
		return value
	}
	return i18n.Default
}
