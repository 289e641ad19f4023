package engine

import (
	"crypto/rand"
	"math/big"
	"strings"

	"estate/amenity-service/internal/store"
)

const (
	// PassCodeAlphabet leaves out 0, O, 1, I and L.
	PassCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	PassCodeLength   = 6

	minExplicitCodeLength = 4
	maxExplicitCodeLength = 16
)

// CodeGenerator mints a candidate pass code.
type CodeGenerator func() (string, error)

// GeneratePassCode draws PassCodeLength characters from PassCodeAlphabet.
func GeneratePassCode() (string, error) {
	var b strings.Builder
	b.Grow(PassCodeLength)
	limit := big.NewInt(int64(len(PassCodeAlphabet)))
	for i := 0; i < PassCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(PassCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizePassCode is applied to every code a caller types.
func NormalizePassCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateExplicitCode(code string) (string, error) {
	code = NormalizePassCode(code)
	if len(code) < minExplicitCodeLength || len(code) > maxExplicitCodeLength {
		return "", store.Validation("code must be %d-%d characters", minExplicitCodeLength, maxExplicitCodeLength)
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", store.Validation("code must be alphanumeric")
		}
	}
	return code, nil
}
