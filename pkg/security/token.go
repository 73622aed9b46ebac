package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	// MagicLinkPrefix marks plaintext magic upload link tokens.
	MagicLinkPrefix = "mul_"
	// ExtensionTokenPrefix marks plaintext extension API tokens.
	ExtensionTokenPrefix = "sce_"

	tokenLength   = 40
	displayLength = 8
)

var tokenCharset = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789")

// ErrEmptyPepper signals a hasher constructed without its key.
var ErrEmptyPepper = fmt.Errorf("token pepper is required")

// TokenHasher derives lookup hashes for bearer tokens using keyed BLAKE2b.
// Only the hash is persisted; the plaintext is shown to its owner once.
type TokenHasher struct {
	key []byte
}

func NewTokenHasher(pepper string) (*TokenHasher, error) {
	if pepper == "" {
		return nil, ErrEmptyPepper
	}
	key := []byte(pepper)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &TokenHasher{key: key}, nil
}

// Hash returns the hex encoded keyed digest of token.
func (h *TokenHasher) Hash(token string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is bounded in NewTokenHasher
		panic(err)
	}
	mac.Write([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Matches reports whether token hashes to the stored digest.
func (h *TokenHasher) Matches(token, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(token)), []byte(stored)) == 1
}

// GenerateToken returns a random token with the supplied prefix.
func GenerateToken(prefix string) (string, error) {
	body, err := randomString(tokenLength)
	if err != nil {
		return "", err
	}
	return prefix + body, nil
}

// DisplayPrefix returns the leading characters kept for listing a token.
func DisplayPrefix(token string) string {
	for _, p := range []string{MagicLinkPrefix, ExtensionTokenPrefix} {
		if strings.HasPrefix(token, p) {
			rest := strings.TrimPrefix(token, p)
			if len(rest) > displayLength {
				rest = rest[:displayLength]
			}
			return p + rest
		}
	}
	if len(token) > displayLength {
		return token[:displayLength]
	}
	return token
}

func randomString(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = tokenCharset[int(b)%len(tokenCharset)]
	}
	return string(out), nil
}
