// Package gate authenticates every inbound request before any business logic
// runs. A request passes only if it carries the configured API key, a fresh
// timestamp, and an HMAC signature over its canonical payload: query
// parameters for reads, the JSON body for mutations. Rejections short-circuit
// with a distinguishable error code and never leave partial side effects.
package gate

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/odvcencio/helmsman/pkg/errors"
	"github.com/odvcencio/helmsman/pkg/logging"
	"github.com/odvcencio/helmsman/pkg/signature"
)

const (
	// HeaderAPIKey carries the shared API key.
	HeaderAPIKey = "X-API-Key"

	// HeaderTimestamp carries the request time in decimal seconds since epoch.
	HeaderTimestamp = "X-Timestamp"

	// HeaderSignature carries the lowercase hex HMAC-SHA256 signature.
	HeaderSignature = "X-Signature"

	maxSignedBodyBytes int64 = 8 << 20
)

// Config controls the gate behavior.
type Config struct {
	// APIKey is the shared secret; it keys the HMAC as well.
	APIKey string

	// MaxClockSkew is the replay window around the gateway clock.
	MaxClockSkew time.Duration

	// ExemptPaths bypass authentication entirely.
	ExemptPaths []string

	// Now overrides the clock, used in tests.
	Now func() time.Time

	// Respond writes a rejection. When nil a minimal JSON writer is used.
	Respond func(w http.ResponseWriter, status int, err error)

	// OnReject observes rejection codes, used for metrics.
	OnReject func(code apperrors.ErrorCode)

	Logger *logging.Logger
}

// Gate is the request-authentication middleware.
type Gate struct {
	cfg    Config
	exempt map[string]struct{}
}

// New creates a gate.
func New(cfg Config) *Gate {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Respond == nil {
		cfg.Respond = defaultRespond
	}
	exempt := make(map[string]struct{}, len(cfg.ExemptPaths))
	for _, path := range cfg.ExemptPaths {
		exempt[path] = struct{}{}
	}
	return &Gate{cfg: cfg, exempt: exempt}
}

// Middleware wraps a handler with the authentication checks.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := g.exempt[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		if err := g.authenticate(w, r); err != nil {
			g.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) authenticate(w http.ResponseWriter, r *http.Request) error {
	apiKey := r.Header.Get(HeaderAPIKey)
	timestampRaw := r.Header.Get(HeaderTimestamp)
	candidate := r.Header.Get(HeaderSignature)

	if apiKey == "" || timestampRaw == "" || candidate == "" {
		return apperrors.New(apperrors.ErrCodeAuthMissingCredential,
			"authentication headers incomplete")
	}

	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(g.cfg.APIKey)) != 1 {
		return apperrors.New(apperrors.ErrCodeAuthInvalidKey, "API key not authorized")
	}

	timestamp, err := strconv.ParseInt(timestampRaw, 10, 64)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeAuthStaleTimestamp, "timestamp not parseable")
	}
	now := g.cfg.Now().Unix()
	skew := now - timestamp
	if skew < 0 {
		skew = -skew
	}
	// Compare in whole seconds; converting skew to a Duration would overflow
	// int64 for timestamps more than ~292 years out.
	if skew < 0 || skew > int64(g.cfg.MaxClockSkew/time.Second) {
		return apperrors.New(apperrors.ErrCodeAuthStaleTimestamp, "timestamp outside replay window")
	}

	payload, err := g.extractPayload(w, r)
	if err != nil {
		return err
	}

	if !signature.Verify(payload, timestamp, g.cfg.APIKey, candidate) {
		return apperrors.New(apperrors.ErrCodeAuthBadSignature, "signature mismatch")
	}
	return nil
}

// extractPayload builds the signable payload. Reads sign their query
// parameters; mutations sign their JSON body. The body is restored so the
// handler can decode it again.
func (g *Gate) extractPayload(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return signature.QueryPayload(r.URL.Query()), nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSignedBodyBytes))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAuthMalformedPayload, "read request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeAuthMalformedPayload,
			"request body must be a JSON object")
	}
	// A literal null decodes into a nil map without error; it is not an object.
	if payload == nil {
		return nil, apperrors.New(apperrors.ErrCodeAuthMalformedPayload,
			"request body must be a JSON object")
	}
	return payload, nil
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.GetCode(err)
	if g.cfg.OnReject != nil {
		g.cfg.OnReject(code)
	}
	g.cfg.Logger.Warn(logging.CategoryAuth, "request_rejected", err.Error(), map[string]any{
		"path":   r.URL.Path,
		"method": r.Method,
		"code":   string(code),
	})
	g.cfg.Respond(w, apperrors.HTTPStatus(code), err)
}

func defaultRespond(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"code":    string(apperrors.GetCode(err)),
		"message": err.Error(),
	})
}
