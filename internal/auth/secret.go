package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// dummyHash keeps the cost of an unknown-client check equal to a real one.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("audit-trail-dummy"), bcrypt.DefaultCost)

func HashSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckSecret compares a client secret with its bcrypt hash. An empty hash
// (unknown client) always fails after doing the same amount of work.
func CheckSecret(hash, secret string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
