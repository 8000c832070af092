// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance(r),
	})
}

// ProblemTyped sends an RFC7807 response carrying a machine-readable type tag.
func ProblemTyped(w http.ResponseWriter, r *http.Request, typ string, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Type:     typ,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance(r),
	})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

func instance(r *http.Request) string {
	if r == nil {
		return ""
	}
	return r.URL.Path
}
