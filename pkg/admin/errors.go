// Error handling utilities for the management API.

package admin

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/httputil"
	"github.com/getmockd/interceptd/pkg/plugin"
	"github.com/getmockd/interceptd/pkg/recording"
	"github.com/getmockd/interceptd/pkg/rules"
	"github.com/getmockd/interceptd/pkg/websocket"
)

// Safe error messages for client responses.
const (
	// ErrMsgInternalError is returned for unexpected internal errors.
	ErrMsgInternalError = "An internal error occurred"

	// ErrMsgInvalidJSON is returned for JSON parsing errors.
	ErrMsgInvalidJSON = "Invalid JSON in request body"

	// ErrMsgNotFound is returned when a resource is not found.
	ErrMsgNotFound = "Resource not found"
)

// maxRequestBody bounds management request bodies.
const maxRequestBody = 10 << 20

// writeStoreError maps a domain error onto a status code. Unknown errors are
// logged and reported generically.
func writeStoreError(w http.ResponseWriter, log *slog.Logger, operation string, err error) {
	var (
		cfgErr   *config.ValidationError
		rulesErr *rules.ValidationError
	)
	switch {
	case errors.Is(err, plugin.ErrPluginNotFound),
		errors.Is(err, rules.ErrNotFound),
		errors.Is(err, recording.ErrNotFound),
		errors.Is(err, websocket.ErrConnectionNotFound),
		errors.Is(err, config.ErrConfigSetNotFound):
		httputil.WriteNotFound(w, "not_found", err.Error())
	case errors.As(err, &rulesErr):
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation_failed",
			"message": "rule set failed validation",
			"details": rulesErr.Errors,
		})
	case errors.As(err, &cfgErr),
		errors.Is(err, rules.ErrInvalidRuleSet),
		errors.Is(err, rules.ErrReservedName),
		errors.Is(err, rules.ErrInvalidName),
		errors.Is(err, recording.ErrInvalidPath),
		errors.Is(err, errBadRequest):
		httputil.WriteBadRequest(w, "bad_request", err.Error())
	default:
		log.Error("operation failed", "operation", operation, "error", err)
		httputil.WriteInternalError(w, "internal_error", ErrMsgInternalError)
	}
}

var errBadRequest = errors.New("bad request")

// decodeJSON reads the request body into v. It writes the error response
// itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, log *slog.Logger, v any) bool {
	data, ok := readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Debug("JSON parsing failed", "error", err)
		httputil.WriteBadRequest(w, "invalid_json", ErrMsgInvalidJSON)
		return false
	}
	return true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return nil, false
		}
		httputil.WriteBadRequest(w, "bad_request", "failed to read request body")
		return nil, false
	}
	return data, true
}
