package security

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewToken returns a URL-safe random token of the given length.
func NewToken(length int) (string, error) {
	token, err := nanoid.Generate(tokenAlphabet, length)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}
