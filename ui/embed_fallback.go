//go:build !ui_embed

// Package ui serves the web interface when it is built in.
package ui

import (
	"net/http"
)

// Handler sends browsers to the API docs when no frontend is embedded.
func Handler() (http.Handler, error) {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/docs", http.StatusFound)
	}), nil
}
