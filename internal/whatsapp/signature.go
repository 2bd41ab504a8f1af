package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the HMAC of the raw webhook body.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

var (
	ErrSignatureMissing     = errors.New("whatsapp: signature header missing")
	ErrSignatureMalformed   = errors.New("whatsapp: signature header malformed")
	ErrSignatureMismatch    = errors.New("whatsapp: signature mismatch")
	ErrSubscriptionRejected = errors.New("whatsapp: subscription verification rejected")
)

// IsSignatureError reports whether err is one of the signature failures.
func IsSignatureError(err error) bool {
	return errors.Is(err, ErrSignatureMissing) ||
		errors.Is(err, ErrSignatureMalformed) ||
		errors.Is(err, ErrSignatureMismatch)
}

// VerifySignature checks header ("sha256=<hex>") against the HMAC-SHA256 of
// body keyed with secret. An empty secret disables the check.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return nil
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrSignatureMissing
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return ErrSignatureMalformed
	}
	got, err := hex.DecodeString(header[len(signaturePrefix):])
	if err != nil || len(got) != sha256.Size {
		return ErrSignatureMalformed
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the header value for body; used by tests and local tooling.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySubscription implements the hub.challenge handshake. The challenge is
// echoed only for mode "subscribe" with a matching, configured token.
func VerifySubscription(mode, token, challenge, expected string) (string, error) {
	if mode != "subscribe" || expected == "" {
		return "", ErrSubscriptionRejected
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return "", ErrSubscriptionRejected
	}
	return challenge, nil
}
