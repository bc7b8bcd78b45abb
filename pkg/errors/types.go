package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	// Gate errors, surfaced before business logic runs
	ErrCodeAuthMissingCredential ErrorCode = "AUTH_MISSING_CREDENTIAL"
	ErrCodeAuthInvalidKey        ErrorCode = "AUTH_INVALID_KEY"
	ErrCodeAuthStaleTimestamp    ErrorCode = "AUTH_STALE_TIMESTAMP"
	ErrCodeAuthBadSignature      ErrorCode = "AUTH_BAD_SIGNATURE"
	ErrCodeAuthMalformedPayload  ErrorCode = "AUTH_MALFORMED_PAYLOAD"

	// Session and navigation errors
	ErrCodeNoSessionSelected ErrorCode = "NO_SESSION_SELECTED"
	ErrCodeInvalidResource   ErrorCode = "INVALID_RESOURCE"
	ErrCodePathNotFound      ErrorCode = "PATH_NOT_FOUND"
	ErrCodePathEscape        ErrorCode = "PATH_ESCAPE"
	ErrCodeFileTooLarge      ErrorCode = "FILE_TOO_LARGE"

	// Suggestion errors
	ErrCodeSuggestionNotFound ErrorCode = "SUGGESTION_NOT_FOUND"

	// Collaborator errors (VCS, generator)
	ErrCodeAdapterFailure ErrorCode = "ADAPTER_FAILURE"

	// Configuration errors
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigParse   ErrorCode = "CONFIG_PARSE"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// httpStatusByCode maps error codes to the status the API layer responds with.
var httpStatusByCode = map[ErrorCode]int{
	ErrCodeAuthMissingCredential: http.StatusUnauthorized,
	ErrCodeAuthInvalidKey:        http.StatusForbidden,
	ErrCodeAuthStaleTimestamp:    http.StatusUnauthorized,
	ErrCodeAuthBadSignature:      http.StatusForbidden,
	ErrCodeAuthMalformedPayload:  http.StatusBadRequest,
	ErrCodeNoSessionSelected:     http.StatusBadRequest,
	ErrCodeInvalidResource:       http.StatusNotFound,
	ErrCodePathNotFound:          http.StatusNotFound,
	ErrCodePathEscape:            http.StatusBadRequest,
	ErrCodeFileTooLarge:          http.StatusRequestEntityTooLarge,
	ErrCodeSuggestionNotFound:    http.StatusNotFound,
	ErrCodeAdapterFailure:        http.StatusBadGateway,
	ErrCodeInvalidInput:          http.StatusBadRequest,
}

// HTTPStatus returns the response status for a code, defaulting to 500.
func HTTPStatus(code ErrorCode) int {
	if status, ok := httpStatusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error represents a structured helmsman error
type Error struct {
	Code        ErrorCode
	Message     string
	Underlying  error
	Context     map[string]any
	Retryable   bool
	UserMessage string
}

// New creates a new structured error
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap wraps an existing error with helmsman error context
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:       code,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]any),
	}
}

// WithContext adds context key-value pairs to the error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable marks the error as retryable
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithUserMessage sets the human-friendly message returned to callers.
func (e *Error) WithUserMessage(message string) *Error {
	e.UserMessage = message
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if len(e.Context) > 0 {
		sb.WriteString(" {")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s: %v", k, v))
			first = false
		}
		sb.WriteString("}")
	}
	if e.Underlying != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Underlying))
	}
	return sb.String()
}

// Unwrap returns the underlying error for errors.Is/As
func (e *Error) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error is retryable
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var herr *Error
	if stderrors.As(err, &herr) {
		return herr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var herr *Error
	if stderrors.As(err, &herr) {
		return herr.Code
	}
	return ErrCodeInternal
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var herr *Error
	if stderrors.As(err, &herr) {
		return herr.Retryable
	}
	return false
}
