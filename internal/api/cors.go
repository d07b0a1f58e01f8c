package api

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds CORS configuration. AllowOrigin is "*" or a comma
// separated list of origins.
type CORSConfig struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig allows any origin. The dashboard is usually served
// from a different port on the same LAN host.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:  "*",
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "Accept", "Origin", "Last-Event-ID"},
		MaxAge:       86400,
	}
}

type corsHeaders struct {
	origins      []string
	any          bool
	allowMethods string
	allowHeaders string
	maxAge       string
}

func newCORSHeaders(config CORSConfig) corsHeaders {
	h := corsHeaders{
		allowMethods: strings.Join(config.AllowMethods, ", "),
		allowHeaders: strings.Join(config.AllowHeaders, ", "),
		maxAge:       strconv.Itoa(config.MaxAge),
	}
	for _, o := range strings.Split(config.AllowOrigin, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			h.any = true
		default:
			h.origins = append(h.origins, o)
		}
	}
	return h
}

// origin returns the Access-Control-Allow-Origin value for a request
// origin, or "" when it is not allowed.
func (h corsHeaders) origin(requestOrigin string) string {
	if h.any {
		return "*"
	}
	if slices.Contains(h.origins, requestOrigin) {
		return requestOrigin
	}
	return ""
}

func (h corsHeaders) apply(set func(name, value string), requestOrigin string) {
	allowed := h.origin(requestOrigin)
	if allowed == "" {
		return
	}
	set("Access-Control-Allow-Origin", allowed)
	if !h.any {
		set("Vary", "Origin")
	}
	set("Access-Control-Allow-Methods", h.allowMethods)
	set("Access-Control-Allow-Headers", h.allowHeaders)
	set("Access-Control-Max-Age", h.maxAge)
}

// NewCORSMiddleware sets CORS headers on every huma operation.
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	headers := newCORSHeaders(config)
	return func(ctx huma.Context, next func(huma.Context)) {
		headers.apply(ctx.SetHeader, ctx.Header("Origin"))
		next(ctx)
	}
}

// AddCORSHandler answers preflight requests. Huma routes by method, so
// OPTIONS never reaches the middleware.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	headers := newCORSHeaders(config)
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		headers.apply(w.Header().Set, r.Header.Get("Origin"))
		w.WriteHeader(http.StatusNoContent)
	})
}
