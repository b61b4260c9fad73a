package models

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// IdentityLength is the decoded size of an account identity in bytes.
const IdentityLength = 32

var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is a base58 encoded account key (seller, buyer, keeper, mint).
type Identity string

// ParseIdentity validates the textual form of an identity.
func ParseIdentity(s string) (Identity, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(raw) != IdentityLength {
		return "", fmt.Errorf("%w: %d bytes, want %d", ErrInvalidIdentity, len(raw), IdentityLength)
	}
	return Identity(s), nil
}

// IdentityFromBytes encodes a raw 32 byte key.
func IdentityFromBytes(raw [IdentityLength]byte) Identity {
	return Identity(base58.Encode(raw[:]))
}

func (id Identity) String() string {
	return string(id)
}
