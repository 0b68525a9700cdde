package webhook_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/webhook"
)

const sigSecret = "whsec_sig_test"

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	body := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	header := webhook.SignPayload(body, sigSecret, time.Now())

	if err := webhook.VerifySignature(body, header, sigSecret, 5*time.Minute); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestVerifyEmptySecretFailsClosed(t *testing.T) {
	t.Parallel()

	body := []byte(`{}`)
	header := webhook.SignPayload(body, sigSecret, time.Now())

	err := webhook.VerifySignature(body, header, "", 5*time.Minute)
	if !errors.Is(err, cortexx.ErrIdentityUnavailable) {
		t.Fatalf("expected identity unavailable, got %v", err)
	}
}

func TestVerifyRejections(t *testing.T) {
	t.Parallel()

	body := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"malformed pair", "t=123;v1=abc"},
		{"bad timestamp", "t=soon,v1=abcdef"},
		{"missing digest", fmt.Sprintf("t=%d", now.Unix())},
		{"wrong digest", fmt.Sprintf("t=%d,v1=deadbeef", now.Unix())},
		{"wrong secret", webhook.SignPayload(body, "whsec_other", now)},
		{"tampered body digest", webhook.SignPayload([]byte(`{"id":"evt_2"}`), sigSecret, now)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := webhook.VerifySignature(body, tt.header, sigSecret, 5*time.Minute)
			if !errors.Is(err, cortexx.ErrInvalidSignature) {
				t.Fatalf("expected invalid signature, got %v", err)
			}
		})
	}
}

func TestVerifyToleranceWindow(t *testing.T) {
	t.Parallel()

	body := []byte(`{}`)

	stale := webhook.SignPayload(body, sigSecret, time.Now().Add(-10*time.Minute))
	if err := webhook.VerifySignature(body, stale, sigSecret, 5*time.Minute); !errors.Is(err, cortexx.ErrInvalidSignature) {
		t.Fatalf("expected stale timestamp rejection, got %v", err)
	}

	// Zero tolerance disables the age check entirely.
	if err := webhook.VerifySignature(body, stale, sigSecret, 0); err != nil {
		t.Fatalf("zero tolerance should skip the age check: %v", err)
	}
}

func TestVerifySecretRotation(t *testing.T) {
	t.Parallel()

	// During rotation the processor sends digests for both secrets; one
	// valid candidate is enough.
	body := []byte(`{"id":"evt_rotate"}`)
	header := webhook.SignPayload(body, sigSecret, time.Now()) + ",v1=deadbeef"

	if err := webhook.VerifySignature(body, header, sigSecret, 5*time.Minute); err != nil {
		t.Fatalf("rotation header rejected: %v", err)
	}
}
