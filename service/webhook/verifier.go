package webhook

import (
	"bytes"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// SignatureHeader is the HTTP header InstaXchange uses to carry the webhook
// signature.
const SignatureHeader = "X-Instaxwh-Key"

// ErrUnauthorized is returned when the claimed signature does not match the
// one computed from the body and the shared secret.
var ErrUnauthorized = errors.New("webhook signature mismatch")

// Verifier decides whether an inbound webhook actually originated from the
// payment processor. The processor signs each delivery with
// md5(canonicalJSON(body) + ":" + secret), hex-encoded.
type Verifier struct {
	secret string
}

// NewVerifier creates a Verifier with the given shared secret. An empty
// secret disables verification entirely; config.Load refuses that unless the
// operator explicitly opted into unsigned webhooks.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Enabled reports whether signature enforcement is active.
func (v *Verifier) Enabled() bool {
	return v.secret != ""
}

// Verify checks the claimed signature against the raw webhook body.
// Returns ErrUnauthorized on mismatch; callers must reject the request
// before any state mutation.
func (v *Verifier) Verify(body []byte, claimed string) error {
	if v.secret == "" {
		return nil
	}

	canonical, err := canonicalize(body)
	if err != nil {
		return fmt.Errorf("failed to canonicalize webhook body: %w", err)
	}

	sum := md5.Sum([]byte(canonical + ":" + v.secret))
	expected := hex.EncodeToString(sum[:])

	if subtle.ConstantTimeCompare([]byte(expected), []byte(claimed)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// canonicalize rebuilds the body with the top-level keys sorted and every
// nested value emitted as its compacted wire bytes. The processor signs the
// compact document with only the outermost keys sorted; the nested key order
// and number literals it sent must survive untouched or the signatures
// diverge.
func canonicalize(body []byte) (string, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("invalid JSON body: %w", err)
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := encodeKey(k)
		if err != nil {
			return "", err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if err := json.Compact(&buf, payload[k]); err != nil {
			return "", fmt.Errorf("invalid JSON value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

func encodeKey(k string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(k); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
