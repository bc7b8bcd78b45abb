// Package signature implements the request-signing scheme shared by the
// gateway and its callers.
//
// Canonical form v1: the signable payload is a JSON object encoded as compact
// JSON with object keys sorted lexicographically at every nesting level. The
// signed message is canonical(payload) followed by the decimal timestamp
// string. The digest is HMAC-SHA256 keyed by the shared secret, rendered as
// lowercase hex. Both sides must produce the identical byte sequence; the
// canonical form is part of the wire contract and must not change without a
// version bump.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// Canonical encodes a payload object into canonical form v1.
func Canonical(payload map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyBytes)
			buf.WriteByte(':')
			if err := writeCanonical(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("canonical encode: %w", err)
		}
		buf.Write(encoded)
		return nil
	}
}

// QueryPayload converts query parameters into a signable payload object.
// Only the first value of each parameter is signed; repeated parameters are
// not part of the contract.
func QueryPayload(values url.Values) map[string]any {
	payload := make(map[string]any, len(values))
	for key := range values {
		payload[key] = values.Get(key)
	}
	return payload
}

// Sign computes the signature for a payload at the given timestamp.
func Sign(payload map[string]any, timestamp int64, secret string) (string, error) {
	canonical, err := Canonical(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature and compares it in constant time.
func Verify(payload map[string]any, timestamp int64, secret, candidate string) bool {
	expected, err := Sign(payload, timestamp, secret)
	if err != nil {
		return false
	}
	expectedBytes, err := hex.DecodeString(expected)
	if err != nil {
		return false
	}
	candidateBytes, err := hex.DecodeString(candidate)
	if err != nil {
		return false
	}
	return hmac.Equal(expectedBytes, candidateBytes)
}
