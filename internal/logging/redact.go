package logging

import (
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

// secretKeys are attribute key fragments whose values never reach any log output.
var secretKeys = []string{"password", "api_key", "apikey", "token", "secret", "authorization"}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// redactAttr is a slog.HandlerOptions.ReplaceAttr hiding secret values.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindGroup && isSecretKey(a.Key) {
		return slog.String(a.Key, redacted)
	}
	return a
}
