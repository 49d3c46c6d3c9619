// Package httpx provides the JSON response envelope shared by every API handler.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// ErrInvalidJSON is returned by DecodeJSON when the body cannot be parsed.
var ErrInvalidJSON = errors.New("invalid JSON body")

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Success writes {"success": true, "message": message, ...fields}.
func Success(w http.ResponseWriter, status int, message string, fields map[string]any) {
	body := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	if message != "" {
		body["message"] = message
	}
	JSON(w, status, body)
}

// Fail writes {"success": false, "message": message}.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{"success": false, "message": message})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	if r.Body == nil {
		return ErrInvalidJSON
	}
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrInvalidJSON
		}
		return errors.Join(ErrInvalidJSON, err)
	}
	return nil
}

// IDParam parses a positive numeric chi URL parameter. label names the
// resource in the validation message, e.g. "user".
func IDParam(r *http.Request, name, label string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation("Invalid %s ID", label)
	}
	return id, nil
}
