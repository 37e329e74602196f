package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const passwordAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789!@#$%"

// GenerateTemporaryPassword returns a random password of the given length
// from an alphabet without easily confused characters. Lengths below 12 are
// raised to 12.
func GenerateTemporaryPassword(length int) (string, error) {
	if length < 12 {
		length = 12
	}

	password := make([]byte, length)

	for i := range password {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}

		password[i] = passwordAlphabet[n.Int64()]
	}

	return string(password), nil
}
