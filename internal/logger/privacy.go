package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// MinHashSaltLength is the shortest accepted LOG_HASH_SALT.
const MinHashSaltLength = 32

var hashSalt = "unset-salt-call-InitHashSalt-before-logging"

// InitHashSalt loads the salt for identifier hashing from LOG_HASH_SALT.
// It panics when the salt is missing or shorter than MinHashSaltLength.
func InitHashSalt() {
	salt := os.Getenv("LOG_HASH_SALT")
	if salt == "" {
		panic("LOG_HASH_SALT must be set")
	}
	if len(salt) < MinHashSaltLength {
		panic(fmt.Sprintf("LOG_HASH_SALT must be at least %d characters", MinHashSaltLength))
	}
	hashSalt = salt
}

// InitHashSaltForTesting sets the salt without validation.
func InitHashSaltForTesting(salt string) {
	hashSalt = salt
}

func hashID(kind, id string) string {
	hash := sha256.Sum256([]byte(kind + ":" + id + ":" + hashSalt))
	// First 8 characters are enough to correlate log lines.
	return hex.EncodeToString(hash[:])[:8]
}

// HashUserID creates a privacy-preserving hash of a user ID.
func HashUserID(userID string) string {
	return hashID("user", userID)
}

// HashPhone hashes a phone number so contact matching can be traced without
// writing numbers to the log.
func HashPhone(phone string) string {
	if phone == "" {
		return "<empty>"
	}
	return hashID("phone", phone)
}

// SanitizeText is a general-purpose sanitizer for any user-provided text.
func SanitizeText(text string) string {
	if text == "" {
		return "<empty>"
	}

	runes := []rune(text)
	if len(runes) <= 10 {
		return fmt.Sprintf("<%d chars>", len(runes))
	}

	return fmt.Sprintf("%s...<%d chars>", string(runes[:3]), len(runes))
}

// SanitizeMessage redacts chat text but keeps its shape for debugging.
func SanitizeMessage(text string) string {
	if text == "" {
		return "<empty>"
	}
	return fmt.Sprintf("<redacted: %d words, %d chars>", len(strings.Fields(text)), len([]rune(text)))
}
