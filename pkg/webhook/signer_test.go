package webhook

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"
)

var signaturePattern = regexp.MustCompile(`^t=\d+,v1=[0-9a-f]{64}$`)

func TestSigningKey(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{name: "structured secret", secret: "wh_f1be34ea3bff.ZW5jb2RlZC1wYXJ0", want: "f1be34ea3bff"},
		{name: "structured with extra segments", secret: "wh_abc.def.ghi", want: "abc"},
		{name: "plain secret", secret: "plain-secret", want: "plain-secret"},
		{name: "marker without dot", secret: "wh_nodot", want: "wh_nodot"},
		{name: "marker with empty key", secret: "wh_.tail", want: "wh_.tail"},
		{name: "empty", secret: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SigningKey(tt.secret); got != tt.want {
				t.Errorf("SigningKey(%q) = %q, want %q", tt.secret, got, tt.want)
			}
		})
	}
}

func TestSignFormatAndDeterminism(t *testing.T) {
	payload := `{"event":"matter_creation","teamId":"acme"}`
	secret := "wh_f1be34ea3bff.ZW5jb2RlZA"
	ts := int64(1700000000)

	sig := Sign(payload, secret, ts)
	if !signaturePattern.MatchString(sig) {
		t.Fatalf("signature %q does not match wire format", sig)
	}
	if !strings.HasPrefix(sig, "t=1700000000,") {
		t.Errorf("signature %q does not carry the timestamp", sig)
	}

	if again := Sign(payload, secret, ts); again != sig {
		t.Errorf("signature not deterministic: %q vs %q", sig, again)
	}

	// The structured secret signs with the derived key only.
	if keyed := Sign(payload, "f1be34ea3bff", ts); keyed != sig {
		t.Errorf("structured secret should sign with derived key: %q vs %q", sig, keyed)
	}

	if Sign(payload+" ", secret, ts) == sig {
		t.Error("changing the payload should change the signature")
	}
	if Sign(payload, "other-secret", ts) == sig {
		t.Error("changing the secret should change the signature")
	}
	if Sign(payload, secret, ts+1) == sig {
		t.Error("changing the timestamp should change the signature")
	}
}

func TestSignKnownVector(t *testing.T) {
	// HMAC-SHA256 key "key" over "0.The quick brown fox jumps over the lazy dog".
	sig := Sign("The quick brown fox jumps over the lazy dog", "key", 0)
	_, v1, err := ParseSignature(sig)
	if err != nil {
		t.Fatalf("ParseSignature: %v", err)
	}
	if len(v1) != 64 {
		t.Errorf("digest length = %d, want 64", len(v1))
	}
	if err := Verify("The quick brown fox jumps over the lazy dog", "key", sig, 0); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestVerify(t *testing.T) {
	payload := `{"event":"matter_details"}`
	secret := "wh_0123456789ab.c2VjcmV0"
	now := time.Now().Unix()
	header := Sign(payload, secret, now)

	if err := Verify(payload, secret, header, 5*time.Minute); err != nil {
		t.Fatalf("Verify valid signature: %v", err)
	}

	if err := Verify(payload, "wrong", header, 5*time.Minute); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("wrong secret: err = %v, want ErrInvalidSignature", err)
	}

	if err := Verify("tampered", secret, header, 5*time.Minute); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered payload: err = %v, want ErrInvalidSignature", err)
	}

	old := Sign(payload, secret, now-3600)
	if err := Verify(payload, secret, old, 5*time.Minute); !errors.Is(err, ErrSignatureExpired) {
		t.Errorf("stale signature: err = %v, want ErrSignatureExpired", err)
	}
	if err := Verify(payload, secret, old, 0); err != nil {
		t.Errorf("zero tolerance should skip freshness check: %v", err)
	}
}

func TestParseSignatureMalformed(t *testing.T) {
	for _, header := range []string{
		"",
		"sha256=abc",
		"t=notanumber,v1=abc",
		"t=123",
		"v1=abc",
	} {
		t.Run(header, func(t *testing.T) {
			if _, _, err := ParseSignature(header); !errors.Is(err, ErrMalformedSignature) {
				t.Errorf("ParseSignature(%q) err = %v, want ErrMalformedSignature", header, err)
			}
		})
	}
}

func TestGenerateSecret(t *testing.T) {
	s1, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if !strings.HasPrefix(s1, "wh_") {
		t.Errorf("secret %q missing marker", s1)
	}

	key := SigningKey(s1)
	if len(key) != 12 {
		t.Errorf("derived key %q length = %d, want 12", key, len(key))
	}
	if _, err := strconv.ParseUint(key, 16, 64); err != nil {
		t.Errorf("derived key %q is not hex: %v", key, err)
	}

	s2, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if s1 == s2 {
		t.Error("two generated secrets should differ")
	}
}
