// Package idgen generates record identifiers backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is the character set of the random part. Upper-case letters and
// digits only, so identifiers stay readable on printed invoices.
var Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 8

// GenerateWithPrefix returns a new unique identifier such as "SL-7K2M9QXA".
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
