package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxPathLength bounds URL paths in log lines.
	MaxPathLength = 500
	// MaxOriginLength bounds Origin header values in log lines.
	MaxOriginLength = 256
	// MaxGeneralStringLength bounds any other client-supplied string.
	MaxGeneralStringLength = 2000
)

// SanitizePath prepares a URL path for logging.
func SanitizePath(path string) string {
	return SanitizeString(path, MaxPathLength)
}

// SanitizeOrigin prepares an Origin header value for logging.
func SanitizeOrigin(origin string) string {
	return SanitizeString(origin, MaxOriginLength)
}

// SanitizeString drops invalid UTF-8 and non-printable runes, then truncates to maxLength bytes.
// Client input lands in structured fields, so this only guards against log injection and bloat.
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxGeneralStringLength
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	s = b.String()

	if len(s) > maxLength {
		s = strings.ToValidUTF8(s[:maxLength], "") + "..."
	}
	return s
}
