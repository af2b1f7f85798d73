// Package idgen generates identifiers for entities saved without one.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// Format names an identifier scheme.
type Format string

const (
	FormatUUID   Format = "uuid"
	FormatNanoID Format = "nanoid"
)

// Alphabet is the character set of nanoid identifiers.
// It leaves out the key separator "_".
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of characters in a nanoid identifier.
var Length = 21

// Generator returns a new unique identifier.
type Generator func() (string, error)

// New returns the generator for format. An empty format selects uuid.
func New(format Format) (Generator, error) {
	switch format {
	case "", FormatUUID:
		return UUID, nil
	case FormatNanoID:
		return NanoID, nil
	default:
		return nil, fmt.Errorf("idgen: unknown format %q", format)
	}
}

// UUID returns a random (version 4) UUID.
func UUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return id.String(), nil
}

// NanoID returns a random nanoid over Alphabet.
func NanoID() (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return id, nil
}
