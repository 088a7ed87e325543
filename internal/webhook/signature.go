// Package webhook verifies Calendly webhook signatures.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingSignature   = errors.New("missing signature header")
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrStaleTimestamp     = errors.New("timestamp outside tolerance window")
	ErrInvalidSignature   = errors.New("invalid signature")
)

// Tolerance bounds the replay window around the signed timestamp.
const Tolerance = 5 * time.Minute

// Verify authenticates a raw webhook body against the Calendly-Webhook-Signature
// header, formatted "t=<unix seconds>,v1=<hex hmac>". The signature is
// HMAC-SHA256 over "{t}.{body}" keyed with the shared signing secret.
func Verify(body []byte, header, secret string, now time.Time) error {
	if strings.TrimSpace(header) == "" {
		return ErrMissingSignature
	}

	timestamp, signature, err := parseHeader(header)
	if err != nil {
		return err
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrMalformedSignature
	}
	age := now.Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > Tolerance {
		return ErrStaleTimestamp
	}

	expected := sign(secret, timestamp, body)
	if !constantTimeEqual(signature, expected) {
		return ErrInvalidSignature
	}
	return nil
}

func parseHeader(header string) (timestamp, signature string, err error) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signature = value
		}
	}
	if timestamp == "" || signature == "" {
		return "", "", ErrMalformedSignature
	}
	return timestamp, signature, nil
}

func sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// constantTimeEqual compares the full length of both strings before branching
// so a mismatch position cannot be recovered from response timing. Differing
// lengths fail immediately; length is not considered sensitive.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
