package paddlewebhook

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
	ErrMissingSignature = errors.New("paddle signature header missing")
	ErrMalformed        = errors.New("paddle signature header malformed")
	ErrStale            = errors.New("paddle signature timestamp outside tolerance")
	ErrMismatch         = errors.New("paddle signature mismatch")
)

// Verify checks a Paddle-Signature header ("ts=<unix>;h1=<hex>") against the
// raw body. Any h1 value may match, which allows secret rotation.
func Verify(header string, body []byte, secret string, maxAge time.Duration, now time.Time) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	var (
		ts     string
		hashes []string
	)
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformed
		}
		switch key {
		case "ts":
			ts = value
		case "h1":
			hashes = append(hashes, value)
		}
	}
	if ts == "" || len(hashes) == 0 {
		return ErrMalformed
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMalformed
	}
	if maxAge > 0 {
		age := now.Sub(time.Unix(unix, 0))
		if age > maxAge || age < -maxAge {
			return ErrStale
		}
	}
	expected := Sign(ts, body, secret)
	for _, candidate := range hashes {
		if hmac.Equal([]byte(strings.ToLower(candidate)), []byte(expected)) {
			return nil
		}
	}
	return ErrMismatch
}

// Sign returns the hex HMAC-SHA256 of ts + ":" + body.
func Sign(ts string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte(":"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
