package entity

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsAddress reports whether s is a hex-encoded 20-byte address, with or without 0x.
func IsAddress(s string) bool {
	return common.IsHexAddress(s)
}

// NormalizeAddress lowercases an address so differently-cased inputs share a key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ValidateReceiver checks a message receiver address against the sender.
// Checks run in a fixed order: empty, self, malformed.
func ValidateReceiver(receiver, self string) error {
	receiver = strings.TrimSpace(receiver)
	if receiver == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidInput)
	}
	if self != "" && NormalizeAddress(receiver) == NormalizeAddress(self) {
		return fmt.Errorf("%w: can't send message to yourself", ErrInvalidInput)
	}
	if !IsAddress(receiver) {
		return fmt.Errorf("%w: invalid ethereum address %q", ErrInvalidInput, receiver)
	}
	return nil
}
