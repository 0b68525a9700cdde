package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
)

// Signature header format: "t=<unix>,v1=<hex>", where the hex digest is
// HMAC-SHA256 over "<unix>.<raw body>" with the shared secret. Multiple
// v1 entries are accepted during secret rotation.

// VerifySignature authenticates a raw delivery against the shared secret.
// It fails closed: any malformed header, expired timestamp, or digest
// mismatch rejects the delivery before anything touches the ledger.
func VerifySignature(body []byte, header, secret string, tolerance time.Duration) error {
	if secret == "" {
		// No verifier configured is an outage, not an invitation to
		// trust the payload.
		return cortexx.ErrIdentityUnavailable
	}
	if header == "" {
		return fmt.Errorf("webhook: missing signature header: %w", cortexx.ErrInvalidSignature)
	}

	var ts int64
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return fmt.Errorf("webhook: malformed signature header: %w", cortexx.ErrInvalidSignature)
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("webhook: bad signature timestamp: %w", cortexx.ErrInvalidSignature)
			}
			ts = parsed
		case "v1":
			candidates = append(candidates, v)
		}
	}
	if ts == 0 || len(candidates) == 0 {
		return fmt.Errorf("webhook: signature header missing t or v1: %w", cortexx.ErrInvalidSignature)
	}

	if tolerance > 0 {
		age := time.Since(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("webhook: signature timestamp outside tolerance: %w", cortexx.ErrInvalidSignature)
		}
	}

	expected := computeSignature(body, secret, ts)
	for _, c := range candidates {
		raw, err := hex.DecodeString(c)
		if err != nil {
			continue
		}
		if hmac.Equal(raw, expected) {
			return nil
		}
	}
	return cortexx.ErrInvalidSignature
}

// SignPayload produces a valid signature header for a body at the given
// timestamp. Used by tests and the local development processor stub.
func SignPayload(body []byte, secret string, ts time.Time) string {
	unix := ts.Unix()
	digest := computeSignature(body, secret, unix)
	return fmt.Sprintf("t=%d,v1=%s", unix, hex.EncodeToString(digest))
}

func computeSignature(body []byte, secret string, ts int64) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}
