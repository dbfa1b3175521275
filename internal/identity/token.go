// Package identity is the boundary to identity and authorization: minting
// capability tokens for customers and answering admin questions.
package identity

import (
	"fmt"

	"github.com/google/uuid"
)

// TokenMinter issues unguessable capability tokens (customer secret keys).
type TokenMinter interface {
	MintCapabilityToken() (string, error)
}

// UUIDMinter mints random v4 UUIDs.
type UUIDMinter struct{}

func (UUIDMinter) MintCapabilityToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("mint capability token: %w", err)
	}
	return id.String(), nil
}

// MinterFunc adapts a function to TokenMinter.
type MinterFunc func() (string, error)

func (f MinterFunc) MintCapabilityToken() (string, error) { return f() }
