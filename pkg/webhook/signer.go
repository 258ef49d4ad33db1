package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Webhook request headers.
const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
	DeliveryHeader  = "X-Webhook-Delivery"
	TimestampHeader = "X-Webhook-Timestamp"
)

// secretMarker prefixes structured secrets of the form "wh_<key>.<encoded>".
const secretMarker = "wh_"

var (
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrSignatureExpired   = errors.New("signature timestamp outside tolerance")
	ErrInvalidSignature   = errors.New("signature mismatch")
)

// SigningKey derives the HMAC key from a configured secret. Structured
// secrets yield the segment between the marker and the first dot; anything
// else is used as-is.
func SigningKey(secret string) string {
	rest, ok := strings.CutPrefix(secret, secretMarker)
	if !ok {
		return secret
	}
	key, _, found := strings.Cut(rest, ".")
	if !found || key == "" {
		return secret
	}
	return key
}

// Sign returns "t=<timestamp>,v1=<hex hmac-sha256 of "<timestamp>.<payload>">".
func Sign(payload, secret string, timestamp int64) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, computeMAC(payload, SigningKey(secret), timestamp))
}

func computeMAC(payload, key string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseSignature splits a signature header into its timestamp and v1 digest.
func ParseSignature(header string) (int64, string, error) {
	var (
		ts    int64
		v1    string
		hasTS bool
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, "", ErrMalformedSignature
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", ErrMalformedSignature
			}
			ts, hasTS = n, true
		case "v1":
			v1 = v
		}
	}
	if !hasTS || v1 == "" {
		return 0, "", ErrMalformedSignature
	}
	return ts, v1, nil
}

// Verify checks a signature header against the payload. A zero tolerance
// disables the timestamp freshness check.
func Verify(payload, secret, header string, tolerance time.Duration) error {
	ts, got, err := ParseSignature(header)
	if err != nil {
		return err
	}
	if tolerance > 0 {
		age := time.Since(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return ErrSignatureExpired
		}
	}
	want := computeMAC(payload, SigningKey(secret), ts)
	if !hmac.Equal([]byte(want), []byte(got)) {
		return ErrInvalidSignature
	}
	return nil
}

// GenerateSecret returns a new structured secret "wh_<12 hex>.<base64url>".
func GenerateSecret() (string, error) {
	key := make([]byte, 6)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	tail := make([]byte, 24)
	if _, err := rand.Read(tail); err != nil {
		return "", err
	}
	return secretMarker + hex.EncodeToString(key) + "." + base64.RawURLEncoding.EncodeToString(tail), nil
}
