package entity

// Identity is the chain-registered identity of an address.
type Identity struct {
	PublicKey   string `json:"publicKey"`
	BlockNumber uint64 `json:"blockNumber"`
	BlockHash   string `json:"blockHash"`
}

// IsEmpty reports whether the identity carries no public key.
func (i *Identity) IsEmpty() bool {
	return i == nil || i.PublicKey == ""
}

// CachedVerification is the locally cached verification state for one platform.
type CachedVerification struct {
	SocialProof    *BoundSocial  `json:"socialProof,omitempty"`
	LastFetchBlock *int64        `json:"lastFetchBlock,omitempty"`
	VerifiedStatus *VerifyStatus `json:"verifiedStatus,omitempty"`
}

// CachedVerifications maps each platform to its cached verification state.
type CachedVerifications map[Platform]CachedVerification

// NewCachedVerifications returns one empty entry per supported platform.
func NewCachedVerifications() CachedVerifications {
	v := make(CachedVerifications, len(Platforms))
	for _, p := range Platforms {
		v[p] = CachedVerification{}
	}
	return v
}

// Clone returns a deep copy.
func (v CachedVerifications) Clone() CachedVerifications {
	if v == nil {
		return nil
	}
	out := make(CachedVerifications, len(v))
	for p, cv := range v {
		c := CachedVerification{}
		if cv.SocialProof != nil {
			sp := *cv.SocialProof
			c.SocialProof = &sp
		}
		if cv.LastFetchBlock != nil {
			b := *cv.LastFetchBlock
			c.LastFetchBlock = &b
		}
		if cv.VerifiedStatus != nil {
			vs := *cv.VerifiedStatus
			c.VerifiedStatus = &vs
		}
		out[p] = c
	}
	return out
}

// UserCache is the per-(network, address) identity and verification cache record.
type UserCache struct {
	NetworkID     NetworkID           `json:"networkId"`
	UserAddress   string              `json:"userAddress"`
	Identity      *Identity           `json:"identity,omitempty"`
	Verifications CachedVerifications `json:"verifications,omitempty"`
}

// NewUserCache returns an empty cache record for key.
func NewUserCache(key RecordKey) *UserCache {
	return &UserCache{NetworkID: key.NetworkID, UserAddress: key.UserAddress}
}

// Key returns the record's composite key.
func (c *UserCache) Key() RecordKey {
	return NewRecordKey(c.NetworkID, c.UserAddress)
}

// Clone returns a deep copy.
func (c *UserCache) Clone() *UserCache {
	if c == nil {
		return nil
	}
	out := *c
	if c.Identity != nil {
		id := *c.Identity
		out.Identity = &id
	}
	out.Verifications = c.Verifications.Clone()
	return &out
}

// UserCacheUpdate is a partial update of a UserCache; nil fields are left untouched.
type UserCacheUpdate struct {
	Identity      *Identity
	Verifications CachedVerifications
}

// Apply merges the provided fields into c.
func (u UserCacheUpdate) Apply(c *UserCache) {
	if u.Identity != nil {
		id := *u.Identity
		c.Identity = &id
	}
	if u.Verifications != nil {
		c.Verifications = u.Verifications.Clone()
	}
}
