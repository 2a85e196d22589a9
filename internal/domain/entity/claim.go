package entity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProductName is the first line of every published claim.
const ProductName = "Keymail"

// Claim binds an address to the public key used for messaging.
type Claim struct {
	UserAddress string `json:"userAddress"`
	PublicKey   string `json:"publicKey"`
}

// NewClaim creates a new Claim with validation.
func NewClaim(userAddress, publicKey string) (Claim, error) {
	if strings.TrimSpace(userAddress) == "" {
		return Claim{}, fmt.Errorf("%w: user address is required", ErrInvalidInput)
	}
	if strings.TrimSpace(publicKey) == "" {
		return Claim{}, fmt.Errorf("%w: public key is required", ErrInvalidInput)
	}
	return Claim{UserAddress: userAddress, PublicKey: publicKey}, nil
}

// Payload returns the canonical serialization that gets signed:
// {"userAddress":"...","publicKey":"..."}.
func (c Claim) Payload() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshalling claim: %w", err)
	}
	return b, nil
}

// SignedClaim is a Claim plus a signature over its payload.
type SignedClaim struct {
	Claim     Claim  `json:"claim"`
	Signature string `json:"signature"`
}

// Text renders the four-line claim a user publishes on a platform.
func (s SignedClaim) Text() string {
	return fmt.Sprintf("%s\naddr: %s\npublic key: %s\nsig: %s",
		ProductName, s.Claim.UserAddress, s.Claim.PublicKey, s.Signature)
}
