package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// NewNumericCode returns a random decimal code of exactly length digits.
// Leading zeros are kept, so the result must be handled as a string.
func NewNumericCode(length int) (string, error) {
	if length <= 0 || length > 9 {
		return "", fmt.Errorf("invalid code length %d", length)
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}

// NewUniqueID returns the first 8 hex characters of a random UUID. This is not
// collision-free; storage enforces uniqueness.
func NewUniqueID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
