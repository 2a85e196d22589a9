// Package entity contains the core domain entities for social-proof binding.
// These entities represent the fundamental business objects and have no external dependencies.
package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// Platform identifies an external social platform a user can bind to an address.
type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformFacebook Platform = "facebook"
)

// Platforms lists every supported platform in display order.
var Platforms = []Platform{PlatformTwitter, PlatformFacebook}

// ParsePlatform converts a platform name into a Platform.
func ParsePlatform(name string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(name)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, name)
	}
	return p, nil
}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

func (p Platform) String() string {
	return string(p)
}

// NetworkID is an Ethereum network identifier.
type NetworkID int

const (
	NetworkMainnet NetworkID = 1
	NetworkRopsten NetworkID = 3
	NetworkRinkeby NetworkID = 4
	NetworkKovan   NetworkID = 42
)

// NetworkNameToID maps network names to their IDs.
var NetworkNameToID = map[string]NetworkID{
	"mainnet": NetworkMainnet,
	"ropsten": NetworkRopsten,
	"rinkeby": NetworkRinkeby,
	"kovan":   NetworkKovan,
}

// NetworkIDToName maps network IDs to their names.
var NetworkIDToName = map[NetworkID]string{
	NetworkMainnet: "mainnet",
	NetworkRopsten: "ropsten",
	NetworkRinkeby: "rinkeby",
	NetworkKovan:   "kovan",
}

// ParseNetworkID accepts either a known network name or a positive numeric ID.
func ParseNetworkID(raw string) (NetworkID, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if id, ok := NetworkNameToID[raw]; ok {
		return id, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid network %q", ErrInvalidInput, raw)
	}
	return NetworkID(n), nil
}

func (n NetworkID) String() string {
	if name, ok := NetworkIDToName[n]; ok {
		return name
	}
	return strconv.Itoa(int(n))
}
