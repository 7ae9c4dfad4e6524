package logger

import "strings"

// SanitizedEmail masks an address down to its first character and TLD,
// e.g. "maria@example.com" -> "m****@*******.com". Log lines carry enough
// to correlate a user without reproducing the address.
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "[invalid-email]"
	}

	masked := mask(local)

	if dot := strings.LastIndex(domain, "."); dot > 0 {
		masked += "@" + mask(domain[:dot]) + domain[dot:]
	} else {
		masked += "@" + mask(domain)
	}
	return masked
}

func mask(s string) string {
	if len(s) <= 1 {
		return s
	}
	return s[:1] + strings.Repeat("*", len(s)-1)
}

// sensitive substrings in query parameter names; a hit redacts the whole
// query string rather than trying to splice individual values out
var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"code",
	"api_key",
	"apikey",
	"email",
	"auth",
}

// SanitizeQueryString reports whether a raw query string should be
// redacted before logging.
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
