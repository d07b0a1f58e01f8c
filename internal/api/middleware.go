package api

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/watchnode/internal/logging"
)

// quietSuffixes are polled or long-lived endpoints logged at debug level
// when they succeed.
var quietSuffixes = []string{"/snapshot", "/stream", "/ws", "/api/health", "/api/metrics"}

// HTTPLoggingMiddleware logs every request with a level derived from its
// status code. Credentials passed in the query are redacted.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	path := ctx.URL().Path
	attrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	u := ctx.URL()
	if query := redactQuery(u.Query()); query != "" {
		attrs = append(attrs, slog.String("query", query))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	next(ctx)

	status := ctx.Status()
	attrs = append(attrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	case quiet(path):
		level = slog.LevelDebug
	}
	logger.LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
}

func quiet(path string) bool {
	for _, suffix := range quietSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

func redactQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	if values.Has("auth") {
		values.Set("auth", "REDACTED")
	}
	return values.Encode()
}
