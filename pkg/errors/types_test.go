package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodePathNotFound, "directory src/api does not exist")

	if err == nil {
		t.Fatal("New should return non-nil error")
	}

	if err.Code != ErrCodePathNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodePathNotFound)
	}

	if err.Message != "directory src/api does not exist" {
		t.Errorf("Message = %v, want 'directory src/api does not exist'", err.Message)
	}

	if err.Underlying != nil {
		t.Error("Underlying should be nil for New error")
	}

	if err.Retryable {
		t.Error("Retryable should default to false")
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("remote rejected push")
	err := Wrap(underlying, ErrCodeAdapterFailure, "push failed")

	if err == nil {
		t.Fatal("Wrap should return non-nil error")
	}

	if err.Underlying != underlying {
		t.Error("Underlying should be preserved")
	}

	if err.Code != ErrCodeAdapterFailure {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeAdapterFailure)
	}

	if !strings.Contains(err.Error(), "remote rejected push") {
		t.Error("Error string should include underlying error")
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "test"); err != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodePathEscape, "path resolves outside repository").
		WithContext("session_id", "42").
		WithContext("path", "../../etc")

	if len(err.Context) != 2 {
		t.Errorf("Context has %d entries, want 2", len(err.Context))
	}

	if !strings.Contains(err.Error(), "session_id") {
		t.Error("Error string should include context keys")
	}
}

func TestUnwrap(t *testing.T) {
	underlying := fmt.Errorf("open README.md: no such file")
	err := Wrap(underlying, ErrCodePathNotFound, "read failed")

	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find underlying error")
	}
}

func TestIsCode(t *testing.T) {
	err := New(ErrCodeSuggestionNotFound, "suggestion 7 not found")
	wrapped := fmt.Errorf("handler: %w", err)

	if !IsCode(wrapped, ErrCodeSuggestionNotFound) {
		t.Error("IsCode should match through wrapping")
	}
	if IsCode(wrapped, ErrCodePathNotFound) {
		t.Error("IsCode should not match a different code")
	}
	if IsCode(errors.New("plain"), ErrCodeSuggestionNotFound) {
		t.Error("IsCode should be false for plain errors")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(ErrCodeAuthBadSignature, "bad sig")); got != ErrCodeAuthBadSignature {
		t.Errorf("GetCode = %v, want %v", got, ErrCodeAuthBadSignature)
	}
	if got := GetCode(errors.New("plain")); got != ErrCodeInternal {
		t.Errorf("GetCode on plain error = %v, want %v", got, ErrCodeInternal)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeAuthMissingCredential, http.StatusUnauthorized},
		{ErrCodeAuthInvalidKey, http.StatusForbidden},
		{ErrCodeAuthStaleTimestamp, http.StatusUnauthorized},
		{ErrCodeAuthBadSignature, http.StatusForbidden},
		{ErrCodeAuthMalformedPayload, http.StatusBadRequest},
		{ErrCodeSuggestionNotFound, http.StatusNotFound},
		{ErrCodeFileTooLarge, http.StatusRequestEntityTooLarge},
		{ErrCodeAdapterFailure, http.StatusBadGateway},
		{ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.code); got != tc.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tc.code, got, tc.want)
		}
	}
}
