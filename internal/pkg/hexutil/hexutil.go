// Package hexutil provides helpers for hex-encoded chain values.
//
// It lives in internal/pkg so both adapters and services can import it.
package hexutil

import (
	"math/big"
	"strings"
)

// IsZero reports whether s encodes the numeric value zero.
// The empty string and a bare "0x" count as zero. Malformed input is not zero.
func IsZero(s string) bool {
	digits := trim(strings.TrimSpace(s))
	if digits == "" {
		return true
	}
	n, ok := new(big.Int).SetString(digits, 16)
	return ok && n.Sign() == 0
}

func trim(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
