// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet defines the character set used for the random portion of IDs.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	idLength    = 16
	tokenLength = 32
)

// Generate returns prefix followed by a random identifier.
func Generate(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, idLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Token returns a high-entropy secret suitable for one-time confirmation.
func Token() (string, error) {
	tok, err := nanoid.Generate(Alphabet, tokenLength)
	if err != nil {
		return "", fmt.Errorf("idgen token: %w", err)
	}
	return tok, nil
}

const referenceAlphabet = "0123456789ABCDEF"

// Reference returns prefix followed by n upper-case hex characters, for
// operator-facing references such as MANUAL_1A2B3C4D.
func Reference(prefix string, n int) (string, error) {
	ref, err := nanoid.Generate(referenceAlphabet, n)
	if err != nil {
		return "", fmt.Errorf("idgen reference: %w", err)
	}
	return prefix + ref, nil
}
