package security

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
)

// LegacyHashPassword reproduces the historical password scheme used by
// existing accounts: md5(md5(password) + salt), all hex lowercase. The inner
// digest is hex-encoded before the salt is appended. Stored rows depend on
// this exact byte sequence, so the construction must not change.
func LegacyHashPassword(password, salt string) string {
	inner := md5.Sum([]byte(password))
	innerHex := hex.EncodeToString(inner[:])
	outer := md5.Sum([]byte(innerHex + salt))
	return hex.EncodeToString(outer[:])
}

// VerifyLegacyPassword compares a candidate password against a stored legacy
// hash in constant time.
func VerifyLegacyPassword(password, salt, storedHash string) bool {
	computed := LegacyHashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
