package api

import (
	"encoding/json"
	stdliberrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/odvcencio/helmsman/pkg/errors"
)

const maxBodyBytes int64 = 1 << 20

// parseIntDefault parses an integer with a default fallback.
func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return def
}

// respondJSON sends a JSON response with appropriate headers.
func respondJSON(w http.ResponseWriter, payload any) {
	respondJSONStatus(w, http.StatusOK, payload)
}

func respondJSONStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// respondError sends a structured JSON error response. The status is derived
// from the error code when the caller passes 0.
func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response := struct {
		Error     string `json:"error"`
		Status    int    `json:"status"`
		Code      string `json:"code,omitempty"`
		Message   string `json:"message"`
		Details   string `json:"details,omitempty"`
		Retryable bool   `json:"retryable,omitempty"`
		Timestamp string `json:"timestamp"`
	}{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	var herr *apperrors.Error
	if stdliberrors.As(err, &herr) {
		if status == 0 {
			status = apperrors.HTTPStatus(herr.Code)
		}
		response.Code = string(herr.Code)
		if herr.UserMessage != "" {
			response.Message = herr.UserMessage
		} else {
			response.Message = herr.Message
		}
		response.Retryable = herr.Retryable
		response.Details = herr.Error()
	} else if err != nil {
		if status == 0 {
			status = http.StatusInternalServerError
		}
		response.Message = err.Error()
		response.Details = fmt.Sprintf("%v", err)
	}
	if status == 0 {
		status = http.StatusInternalServerError
	}

	response.Status = status
	response.Error = http.StatusText(status)

	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(response)
}

// decodeJSONBody decodes a typed request envelope, rejecting oversized and
// malformed bodies.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "request body required")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if stdliberrors.As(err, &maxErr) {
			return apperrors.New(apperrors.ErrCodeInvalidInput,
				fmt.Sprintf("request body too large (max %d bytes)", maxBodyBytes))
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "malformed request body")
	}
	return nil
}
