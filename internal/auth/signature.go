package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultSignatureTTL is the maximum accepted age of a signed webhook.
	DefaultSignatureTTL = 5 * time.Minute

	signaturePrefix = "sha256="
)

var ErrInvalidSignature = errors.New("invalid signature")

// SignPayload returns the webhook signature header value for body sent at ts.
// The signed string is "<unix seconds>.<body>".
func SignPayload(secret string, ts time.Time, body []byte) string {
	mac := hmacSHA256([]byte(secret), signedString(ts.Unix(), body))
	return signaturePrefix + hex.EncodeToString(mac)
}

// VerifySignature checks a webhook signature and the freshness of its
// timestamp header. maxAge <= 0 means DefaultSignatureTTL.
func VerifySignature(secret, timestamp, signature string, body []byte, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = DefaultSignatureTTL
	}

	if !strings.HasPrefix(signature, signaturePrefix) {
		return fmt.Errorf("%w: missing %s prefix", ErrInvalidSignature, signaturePrefix)
	}
	received, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return fmt.Errorf("%w: not hex", ErrInvalidSignature)
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp is not a unix time", ErrInvalidSignature)
	}
	sentAt := time.Unix(unix, 0)
	if age := time.Since(sentAt); age > maxAge {
		return fmt.Errorf("%w: signed %s ago (max %s)", ErrInvalidSignature, age.Round(time.Second), maxAge)
	}
	// clock skew up to 1 minute
	if sentAt.After(time.Now().Add(time.Minute)) {
		return fmt.Errorf("%w: timestamp is in the future", ErrInvalidSignature)
	}

	expected := hmacSHA256([]byte(secret), signedString(unix, body))
	if !hmac.Equal(expected, received) {
		return fmt.Errorf("%w: digest mismatch", ErrInvalidSignature)
	}
	return nil
}

func signedString(unix int64, body []byte) []byte {
	out := make([]byte, 0, len(body)+12)
	out = strconv.AppendInt(out, unix, 10)
	out = append(out, '.')
	return append(out, body...)
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
