package gate

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	apperrors "github.com/odvcencio/helmsman/pkg/errors"
	"github.com/odvcencio/helmsman/pkg/signature"
)

const testKey = "test-api-key-0123456789abcdef0123"

func fixedNow() time.Time {
	return time.Unix(1_700_000_000, 0)
}

func newTestGate(t *testing.T) (*Gate, *apperrors.ErrorCode) {
	t.Helper()
	var rejected apperrors.ErrorCode
	g := New(Config{
		APIKey:       testKey,
		MaxClockSkew: 300 * time.Second,
		ExemptPaths:  []string{"/health"},
		Now:          fixedNow,
		OnReject: func(code apperrors.ErrorCode) {
			rejected = code
		},
	})
	return g, &rejected
}

func okHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func signRequest(t *testing.T, r *http.Request, payload map[string]any, secret string, ts int64) {
	t.Helper()
	sig, err := signature.Sign(payload, ts, secret)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	r.Header.Set(HeaderAPIKey, secret)
	r.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	r.Header.Set(HeaderSignature, sig)
}

func TestMiddleware_ExemptPathBypasses(t *testing.T) {
	g, _ := newTestGate(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	g.Middleware(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("exempt path status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_MissingHeaders(t *testing.T) {
	g, rejected := newTestGate(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pwd", nil)

	g.Middleware(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if *rejected != apperrors.ErrCodeAuthMissingCredential {
		t.Errorf("code = %s, want AUTH_MISSING_CREDENTIAL", *rejected)
	}
}

func TestMiddleware_WrongAPIKey(t *testing.T) {
	g, rejected := newTestGate(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pwd", nil)
	signRequest(t, req, map[string]any{}, "wrong-key-0123456789abcdef0123456", fixedNow().Unix())

	g.Middleware(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if *rejected != apperrors.ErrCodeAuthInvalidKey {
		t.Errorf("code = %s, want AUTH_INVALID_KEY", *rejected)
	}
}

func TestMiddleware_StaleTimestamp(t *testing.T) {
	g, rejected := newTestGate(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pwd", nil)
	signRequest(t, req, map[string]any{}, testKey, fixedNow().Unix()-301)

	g.Middleware(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if *rejected != apperrors.ErrCodeAuthStaleTimestamp {
		t.Errorf("code = %s, want AUTH_STALE_TIMESTAMP", *rejected)
	}
}

func TestMiddleware_TimestampAtWindowEdgePasses(t *testing.T) {
	g, _ := newTestGate(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pwd", nil)
	signRequest(t, req, map[string]any{}, testKey, fixedNow().Unix()-300)

	g.Middleware(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 at the window edge", rec.Code)
	}
}

func TestMiddleware_FarFutureTimestampRejected(t *testing.T) {
	g, rejected := newTestGate(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pwd", nil)

	// A skew this large wraps around int64 when expressed in nanoseconds, so
	// the comparison must stay in seconds.
	ts := fixedNow().Unix() + 18_446_744_074
	signRequest(t, req, map[string]any{}, testKey, ts)

	g.Middleware(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if *rejected != apperrors.ErrCodeAuthStaleTimestamp {
		t.Errorf("code = %s, want AUTH_STALE_TIMESTAMP", *rejected)
	}
}

func TestMiddleware_FarPastTimestampRejected(t *testing.T) {
	g, rejected := newTestGate(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pwd", nil)
	signRequest(t, req, map[string]any{}, testKey, math.MinInt64)

	g.Middleware(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if *rejected != apperrors.ErrCodeAuthStaleTimestamp {
		t.Errorf("code = %s, want AUTH_STALE_TIMESTAMP", *rejected)
	}
}

func TestMiddleware_UnparseableTimestamp(t *testing.T) {
	g, rejected := newTestGate(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pwd", nil)
	req.Header.Set(HeaderAPIKey, testKey)
	req.Header.Set(HeaderTimestamp, "not-a-number")
	req.Header.Set(HeaderSignature, "deadbeef")

	g.Middleware(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if *rejected != apperrors.ErrCodeAuthStaleTimestamp {
		t.Errorf("code = %s, want AUTH_STALE_TIMESTAMP", *rejected)
	}
}

func TestMiddleware_QueryTamperDetected(t *testing.T) {
	g, rejected := newTestGate(t)
	rec := httptest.NewRecorder()

	// Signed for session 42, sent for session 43.
	req := httptest.NewRequest(http.MethodGet, "/ls?session_id=43", nil)
	signRequest(t, req, map[string]any{"session_id": "42"}, testKey, fixedNow().Unix())

	g.Middleware(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if *rejected != apperrors.ErrCodeAuthBadSignature {
		t.Errorf("code = %s, want AUTH_BAD_SIGNATURE", *rejected)
	}
}

func TestMiddleware_SignedQueryPasses(t *testing.T) {
	g, _ := newTestGate(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ls?session_id=42&path=docs", nil)
	signRequest(t, req, map[string]any{"session_id": "42", "path": "docs"}, testKey, fixedNow().Unix())

	g.Middleware(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_MalformedBody(t *testing.T) {
	g, rejected := newTestGate(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cd", strings.NewReader("not json"))
	req.Header.Set(HeaderAPIKey, testKey)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(fixedNow().Unix(), 10))
	req.Header.Set(HeaderSignature, "deadbeef")

	g.Middleware(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if *rejected != apperrors.ErrCodeAuthMalformedPayload {
		t.Errorf("code = %s, want AUTH_MALFORMED_PAYLOAD", *rejected)
	}
}

func TestMiddleware_NullBodyRejected(t *testing.T) {
	g, rejected := newTestGate(t)
	rec := httptest.NewRecorder()

	// A literal null is valid JSON but not an object; it must not be signable
	// as the empty payload.
	req := httptest.NewRequest(http.MethodPost, "/cd", strings.NewReader("null"))
	signRequest(t, req, map[string]any{}, testKey, fixedNow().Unix())

	g.Middleware(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if *rejected != apperrors.ErrCodeAuthMalformedPayload {
		t.Errorf("code = %s, want AUTH_MALFORMED_PAYLOAD", *rejected)
	}
}

func TestMiddleware_SignedBodyPassesAndRemainsReadable(t *testing.T) {
	g, _ := newTestGate(t)
	payload := map[string]any{"session_id": "42", "path": "docs"}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var handlerBody []byte
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cd", bytes.NewReader(body))
	signRequest(t, req, payload, testKey, fixedNow().Unix())

	g.Middleware(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Equal(handlerBody, body) {
		t.Errorf("handler body = %q, want original body restored", handlerBody)
	}
}

func TestMiddleware_BodyTamperDetected(t *testing.T) {
	g, rejected := newTestGate(t)

	// Signature covers path "docs" but the wire body says "secrets".
	sig, err := signature.Sign(map[string]any{"session_id": "42", "path": "docs"}, fixedNow().Unix(), testKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cd",
		strings.NewReader(`{"session_id":"42","path":"secrets"}`))
	req.Header.Set(HeaderAPIKey, testKey)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(fixedNow().Unix(), 10))
	req.Header.Set(HeaderSignature, sig)

	g.Middleware(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if *rejected != apperrors.ErrCodeAuthBadSignature {
		t.Errorf("code = %s, want AUTH_BAD_SIGNATURE", *rejected)
	}
}
