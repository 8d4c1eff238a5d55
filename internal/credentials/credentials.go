package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

// Characters that are easy to read aloud or copy from an email: no 0/O, 1/l/I.
const passwordChars = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// TemporaryPasswordLength is long enough to clear the minimum password length with margin
const TemporaryPasswordLength = 10

// GenerateTemporaryPassword generates a random first-login password for a guardian
func GenerateTemporaryPassword() (string, error) {
	password := make([]byte, TemporaryPasswordLength)
	for i := range password {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordChars))))
		if err != nil {
			return "", err
		}
		password[i] = passwordChars[num.Int64()]
	}
	return string(password), nil
}

// GenerateToken returns n random bytes hex-encoded, for reset links and OAuth state
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
