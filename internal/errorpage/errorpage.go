// Package errorpage renders the generic pages shown to storefront visitors
// when a render fails. Only the status and a public message are shown.
package errorpage

//go:generate templ generate

import (
	"context"
	"net/http"
	"strings"

	"github.com/a-h/templ"
)

// Title returns the heading of the page for a status.
func Title(status int) string {
	switch status {
	case http.StatusNotFound:
		return "Page not found"
	case http.StatusPaymentRequired:
		return "Store unavailable"
	default:
		return "Something went wrong"
	}
}

// Render returns the error page for a status as a string.
func Render(ctx context.Context, status int, storeName string) (string, error) {
	var b strings.Builder
	if err := Page(status, storeName).Render(ctx, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Handler serves the error page with its status code.
func Handler(status int, storeName string) http.Handler {
	return templ.Handler(Page(status, storeName), templ.WithStatus(status))
}
