package telemetry

import (
	"net/url"
	"strings"
)

// sensitiveQueryParams are stripped from URLs before they reach span attributes
var sensitiveQueryParams = []string{
	"api_key", "apikey", "key", "token", "access_token", "secret", "password",
}

// SanitiseURL removes credentials and sensitive query parameters from a URL
func SanitiseURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid-url]"
	}

	if parsed.User != nil {
		parsed.User = url.User("redacted")
	}

	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			for _, sensitive := range sensitiveQueryParams {
				if strings.EqualFold(key, sensitive) {
					query.Set(key, "redacted")
				}
			}
		}
		parsed.RawQuery = query.Encode()
	}

	return parsed.String()
}

// TruncateString shortens s to maxLen bytes, marking the cut with "..."
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
