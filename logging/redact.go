package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder is the string used to replace sensitive data
const RedactedPlaceholder = "[REDACTED]"

// sensitivePattern matches a credential that can show up inside free text:
// error messages, echoed headers, cookie dumps. When keepPrefix is set the
// first capture group (e.g. "Bearer ") survives redaction.
type sensitivePattern struct {
	re         *regexp.Regexp
	keepPrefix bool
}

var sensitivePatterns = []sensitivePattern{
	{regexp.MustCompile(`(?i)(__Secure-next-auth\.session-token=)[^;\s"]+`), true},
	{regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9._~+/=-]{16,}`), true},
	{regexp.MustCompile(`(?i)((?:access_?token|api_?key|secret|password)"?\s*[:=]\s*"?)[^\s,;"]{8,}`), true},
	// Google OAuth access tokens
	{regexp.MustCompile(`ya29\.[a-zA-Z0-9._-]{20,}`), false},
	// JWT / JWE, including bare session tokens pasted as cookies
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{10,}\.[a-zA-Z0-9_-]{10,}(?:\.[a-zA-Z0-9_-]+)*`), false},
	// OpenAI keys
	{regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`), false},
}

// sensitiveKeyFragments mark a field name whose whole value is secret.
var sensitiveKeyFragments = []string{
	"COOKIE",
	"TOKEN",
	"AUTHORIZATION",
	"API_KEY",
	"APIKEY",
	"SECRET",
	"PASSWORD",
}

// RedactSensitiveData replaces credentials found in value. Prefixes that
// identify the kind of secret (e.g. "Bearer ") are kept so logs stay readable.
//
// Example:
//
//	RedactSensitiveData("Authorization: Bearer ya29.a0AfH6SMB...")
//	// "Authorization: Bearer [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}

	result := value
	for _, p := range sensitivePatterns {
		if p.keepPrefix {
			result = p.re.ReplaceAllString(result, "${1}"+RedactedPlaceholder)
		} else {
			result = p.re.ReplaceAllString(result, RedactedPlaceholder)
		}
	}
	return result
}

// IsSensitiveField reports whether a field name marks its value as secret.
//
// Example:
//
//	IsSensitiveField("access_token") // true
//	IsSensitiveField("row")          // false
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(fieldName)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(upperName, fragment) {
			return true
		}
	}
	return false
}
