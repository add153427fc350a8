package observability

import "strings"

var sensitiveHeaderKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"authorization",
	"cookie",
}

// MaskAuthorization masks bearer tokens, preserving the scheme.
func MaskAuthorization(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	parts := strings.Fields(value)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return "Bearer " + maskLast4(parts[1])
	}
	return maskLast4(value)
}

// IsSensitiveHeader reports whether a header must never be logged verbatim.
func IsSensitiveHeader(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, needle := range sensitiveHeaderKeys {
		if strings.Contains(name, needle) {
			return true
		}
	}
	return false
}

func maskLast4(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
