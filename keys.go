package accounts

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// KeyLength is the canonical length of activation and confirmation keys:
// 160 bits of entropy rendered as lowercase hexadecimal.
const KeyLength = 40

// GenerateKey returns a fresh unguessable key of KeyLength lowercase hex
// characters. Uniqueness across live records is guaranteed by entropy size,
// not by a collision scan.
func GenerateKey() (string, error) {
	buf := make([]byte, KeyLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random bytes for key")
	}
	return hex.EncodeToString(buf), nil
}

// MustGenerateKey is GenerateKey for callers that treat an entropy failure
// as fatal.
func MustGenerateKey() string {
	key, err := GenerateKey()
	if err != nil {
		panic(err)
	}
	return key
}

// ValidKeyFormat reports whether key has the canonical shape. It says
// nothing about whether the key exists.
func ValidKeyFormat(key string) bool {
	if len(key) != KeyLength {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}

// KeyExpired is the expiry check shared by activation and confirmation
// keys: the key is expired once it is older than window at now. Expiry is
// computed from the issue timestamp, not stored as a deadline.
func KeyExpired(issuedAt time.Time, window time.Duration, now time.Time) bool {
	return now.Sub(issuedAt) > window
}
