// Package secrets issues and checks the one-time confirmation tokens of the
// two-phase gate. Only bcrypt hashes are ever stored.
package secrets

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/idgen"
)

// Hasher hashes and verifies tokens at a fixed bcrypt cost.
type Hasher struct {
	cost int
}

// NewHasher clamps cost into bcrypt's accepted range.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return Hasher{cost: cost}
}

// Issue returns a fresh token and its hash.
func (h Hasher) Issue() (token, hash string, err error) {
	token, err = idgen.Token()
	if err != nil {
		return "", "", err
	}
	hash, err = h.Hash(token)
	if err != nil {
		return "", "", err
	}
	return token, hash, nil
}

func (h Hasher) Hash(token string) (string, error) {
	if token == "" {
		return "", dErrors.New(dErrors.CodeValidation, "token cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "token is too long")
		}
		return "", fmt.Errorf("could not hash token: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether token matches hash. Malformed hashes never match.
func (h Hasher) Verify(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
