package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

var (
	_ outbound.Signer            = (*KeySigner)(nil)
	_ outbound.SignatureVerifier = Verifier{}
)

// KeySigner signs keccak256(payload) with a secp256k1 private key.
// Signatures are 65-byte [R || S || V] hex strings.
type KeySigner struct {
	key *ecdsa.PrivateKey
}

// NewKeySigner parses a hex private key, with or without 0x.
func NewKeySigner(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing private key: %v", entity.ErrInvalidInput, err)
	}
	return &KeySigner{key: key}, nil
}

// GenerateKeySigner creates a signer with a fresh random key.
func GenerateKeySigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &KeySigner{key: key}, nil
}

// PublicKey returns the compressed public key as hex.
func (s *KeySigner) PublicKey() string {
	return hexutil.Encode(crypto.CompressPubkey(&s.key.PublicKey))
}

// Address returns the Ethereum address of the key.
func (s *KeySigner) Address() string {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

// Sign signs keccak256(payload).
func (s *KeySigner) Sign(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sig, err := crypto.Sign(crypto.Keccak256(payload), s.key)
	if err != nil {
		return "", fmt.Errorf("signing payload: %w", err)
	}
	return hexutil.Encode(sig), nil
}

// Verifier checks KeySigner signatures against compressed or uncompressed public keys.
type Verifier struct{}

// Verify reports whether signature is a valid signature of keccak256(payload) by publicKey.
// Malformed input is reported as an error.
func (Verifier) Verify(payload []byte, signature, publicKey string) (bool, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false, fmt.Errorf("%w: decoding signature: %v", entity.ErrInvalidInput, err)
	}
	if len(sig) != crypto.SignatureLength {
		return false, fmt.Errorf("%w: signature must be %d bytes, got %d", entity.ErrInvalidInput, crypto.SignatureLength, len(sig))
	}
	pub, err := hexutil.Decode(publicKey)
	if err != nil {
		return false, fmt.Errorf("%w: decoding public key: %v", entity.ErrInvalidInput, err)
	}
	return crypto.VerifySignature(pub, crypto.Keccak256(payload), sig[:64]), nil
}
