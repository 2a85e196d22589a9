package outbound

import (
	"context"
)

// ChainIdentity is the raw identity registered on chain for an address.
// PublicKey is hex encoded and is all zeros when the address never registered.
type ChainIdentity struct {
	PublicKey   string
	BlockNumber uint64
}

// IdentityResolver reads identities and block hashes from the chain.
type IdentityResolver interface {
	// GetIdentity returns the registered identity for userAddress.
	GetIdentity(ctx context.Context, userAddress string) (ChainIdentity, error)

	// BlockHash returns the hex hash of the block at blockNumber.
	BlockHash(ctx context.Context, blockNumber uint64) (string, error)
}

// Signer produces a hex signature over arbitrary bytes.
type Signer interface {
	Sign(ctx context.Context, payload []byte) (string, error)
}

// SignatureVerifier checks a hex signature over payload against a public key.
type SignatureVerifier interface {
	Verify(payload []byte, signature, publicKey string) (bool, error)
}
