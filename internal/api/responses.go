package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// downloadResponse is the success payload of POST /api/download.
type downloadResponse struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	Filename         string `json:"filename"`
	DownloadURL      string `json:"download_url"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// errorResponse is the shape of every error body. Detail never carries raw
// paths, raw tool output, or caller-supplied filenames.
type errorResponse struct {
	Detail string `json:"detail"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes an error response with the given status code.
func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, errorResponse{Detail: detail})
}

// rateLimitExceededHandler writes the 429 response with a Retry-After hint.
func rateLimitExceededHandler(window time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
		writeDetail(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
	}
}
