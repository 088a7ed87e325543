package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

func signedHeader(t *testing.T, secret string, body []byte, at time.Time) string {
	t.Helper()
	timestamp := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"event":"invitee.created"}`)
	header := signedHeader(t, "whsec_test", body, now)

	if err := Verify(body, header, "whsec_test", now); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyRejectsFlippedHexCharacter(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"event":"invitee.created"}`)
	header := signedHeader(t, "whsec_test", body, now)

	// Flip the final hex character of v1.
	last := header[len(header)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	tampered := header[:len(header)-1] + string(flipped)

	if err := Verify(body, tampered, "whsec_test", now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{}`)
	header := signedHeader(t, "whsec_other", body, now)

	if err := Verify(body, header, "whsec_test", now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{}`)

	for _, skew := range []time.Duration{-6 * time.Minute, 6 * time.Minute} {
		header := signedHeader(t, "whsec_test", body, now.Add(skew))
		if err := Verify(body, header, "whsec_test", now); !errors.Is(err, ErrStaleTimestamp) {
			t.Fatalf("skew %v: expected ErrStaleTimestamp, got %v", skew, err)
		}
	}
}

func TestVerifyAcceptsTimestampInsideWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{}`)
	header := signedHeader(t, "whsec_test", body, now.Add(-4*time.Minute))

	if err := Verify(body, header, "whsec_test", now); err != nil {
		t.Fatalf("expected signature within window to verify, got %v", err)
	}
}

func TestVerifyRejectsMissingHeader(t *testing.T) {
	if err := Verify([]byte(`{}`), "", "whsec_test", time.Now()); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
}

func TestVerifyRejectsHeaderWithoutRequiredKeys(t *testing.T) {
	cases := []string{
		"t=1700000000",
		"v1=deadbeef",
		"foo=bar",
		"t=,v1=",
	}
	for _, header := range cases {
		if err := Verify([]byte(`{}`), header, "whsec_test", time.Now()); !errors.Is(err, ErrMalformedSignature) {
			t.Fatalf("header %q: expected ErrMalformedSignature, got %v", header, err)
		}
	}
}

func TestVerifyRejectsNonNumericTimestamp(t *testing.T) {
	header := "t=yesterday,v1=deadbeef"
	if err := Verify([]byte(`{}`), header, "whsec_test", time.Now()); !errors.Is(err, ErrMalformedSignature) {
		t.Fatalf("expected ErrMalformedSignature, got %v", err)
	}
}

func TestVerifyRejectsSignatureOfDifferentBody(t *testing.T) {
	now := time.Unix(1700000000, 0)
	header := signedHeader(t, "whsec_test", []byte(`{"a":1}`), now)

	if err := Verify([]byte(`{"a":2}`), header, "whsec_test", now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}
