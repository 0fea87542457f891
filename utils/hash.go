package utils

import (
	"crypto/sha1"
	"encoding/hex"
)

// MakeHash returns a hex hash string for the given file id, used to derive
// filesystem-safe directory names
func MakeHash(s string) string {
	hashBytes := sha1.Sum([]byte(s))
	return hex.EncodeToString(hashBytes[:])
}
