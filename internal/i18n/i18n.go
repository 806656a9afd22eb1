// Package i18n resolves the content language of a request.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Default is used when nothing in the request matches a supported language.
const Default = "en"

var supported = []language.Tag{
	language.English,
	language.Spanish,
}

var matcher = language.NewMatcher(supported)

// Resolve picks the best supported language code ("en", "es") from the given
// preferences, in priority order. Each preference may be a tag or an
// Accept-Language header value.
func Resolve(preferences ...string) string {
	tag, _ := language.MatchStrings(matcher, preferences...)
	base, _ := tag.Base()
	code := base.String()
	if !IsSupported(code) {
		return Default
	}
	return code
}

// IsSupported reports whether code names a supported content language.
func IsSupported(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, tag := range supported {
		base, _ := tag.Base()
		if base.String() == code {
			return true
		}
	}
	return false
}

// Supported returns the supported language codes.
func Supported() []string {
	codes := make([]string, 0, len(supported))
	for _, tag := range supported {
		base, _ := tag.Base()
		codes = append(codes, base.String())
	}
	return codes
}

// DisplayName returns the English name of a language code, e.g. "Spanish" for "es".
// Unparseable input is returned unchanged.
func DisplayName(code string) string {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return code
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		return code
	}
	return name
}
