package whatsapp

import (
	"errors"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	secret := "test_app_secret"
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)
	validSig := Sign(secret, body)

	mutated := append([]byte(nil), body...)
	mutated[10] ^= 0x01

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      error
	}{
		{"valid signature", secret, body, validSig, nil},
		{"recomputed over mutated body", secret, mutated, Sign(secret, mutated), nil},
		{"mutated body", secret, mutated, validSig, ErrSignatureMismatch},
		{"wrong secret", "other", body, validSig, ErrSignatureMismatch},
		{"empty signature", secret, body, "", ErrSignatureMissing},
		{"missing prefix", secret, body, validSig[len("sha256="):], ErrSignatureMalformed},
		{"bad hex", secret, body, "sha256=zzzz", ErrSignatureMalformed},
		{"short digest", secret, body, "sha256=abcd", ErrSignatureMalformed},
		{"secret unset skips check", "", body, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature(tt.secret, tt.body, tt.signature)
			if !errors.Is(got, tt.want) {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
			if tt.want != nil && !IsSignatureError(got) {
				t.Errorf("IsSignatureError(%v) = false", got)
			}
		})
	}
}

func TestVerifySubscription(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		token    string
		expected string
		wantErr  bool
	}{
		{"valid", "subscribe", "tok", "tok", false},
		{"wrong token", "subscribe", "nope", "tok", true},
		{"wrong mode", "unsubscribe", "tok", "tok", true},
		{"token not configured", "subscribe", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			challenge, err := VerifySubscription(tt.mode, tt.token, "CHALLENGE_123", tt.expected)
			if tt.wantErr {
				if !errors.Is(err, ErrSubscriptionRejected) {
					t.Fatalf("expected rejection, got %v", err)
				}
				if challenge != "" {
					t.Fatalf("challenge leaked on rejection: %q", challenge)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if challenge != "CHALLENGE_123" {
				t.Fatalf("expected CHALLENGE_123, got %q", challenge)
			}
		})
	}
}
