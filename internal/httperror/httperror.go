// Package httperror implements the canonical error-body policy: short
// plain-text bodies for error responses, unless a configured error page
// exists for the status, in which case its HTML is served instead.
package httperror

import "net/http"

// Text is the default plain-text body for each status this server emits
// as an error. Kept short and user-facing.
var Text = map[int]string{
	http.StatusBadRequest:            "Bad request",
	http.StatusUnauthorized:          "Authentication required",
	http.StatusForbidden:             "Access denied",
	http.StatusNotFound:              "Not found",
	http.StatusRequestedRangeNotSatisfiable: "Range not satisfiable",
	http.StatusTooManyRequests:       "Too many requests",
	http.StatusInternalServerError:   "Internal server error",
	http.StatusServiceUnavailable:    "Service unavailable",
}

// Body returns the body to write for status, preferring a configured error
// page's HTML content when pages provides one, falling back to the
// canonical short text.
func Body(status int, pages map[int][]byte) (contentType string, body []byte) {
	if page, ok := pages[status]; ok {
		return "text/html; charset=utf-8", page
	}
	text, ok := Text[status]
	if !ok {
		text = http.StatusText(status)
	}
	return "text/plain; charset=utf-8", []byte(text)
}
