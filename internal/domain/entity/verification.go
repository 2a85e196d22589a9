package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// RecordKey identifies a per-address record within one network.
type RecordKey struct {
	NetworkID   NetworkID
	UserAddress string
}

// NewRecordKey builds a key with a normalized address.
func NewRecordKey(networkID NetworkID, userAddress string) RecordKey {
	return RecordKey{NetworkID: networkID, UserAddress: NormalizeAddress(userAddress)}
}

// Validate checks that both parts of the key are present.
func (k RecordKey) Validate() error {
	if k.NetworkID <= 0 {
		return fmt.Errorf("%w: network id must be positive, got %d", ErrInvalidInput, k.NetworkID)
	}
	if k.UserAddress == "" {
		return fmt.Errorf("%w: user address is required", ErrInvalidInput)
	}
	return nil
}

// String returns the canonical "<network>:<address>" encoding.
func (k RecordKey) String() string {
	return strconv.Itoa(int(k.NetworkID)) + ":" + NormalizeAddress(k.UserAddress)
}

// ParseRecordKey is the inverse of RecordKey.String.
func ParseRecordKey(s string) (RecordKey, error) {
	network, addr, ok := strings.Cut(s, ":")
	if !ok {
		return RecordKey{}, fmt.Errorf("%w: malformed record key %q", ErrInvalidInput, s)
	}
	n, err := strconv.Atoi(network)
	if err != nil {
		return RecordKey{}, fmt.Errorf("%w: malformed network in record key %q", ErrInvalidInput, s)
	}
	key := NewRecordKey(NetworkID(n), addr)
	if err := key.Validate(); err != nil {
		return RecordKey{}, err
	}
	return key, nil
}

// SocialMap holds at most one BoundSocial per platform.
type SocialMap map[Platform]BoundSocial

// Clone returns a copy that shares no map storage with m.
func (m SocialMap) Clone() SocialMap {
	out := make(SocialMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// VerificationsRecord aggregates the social bindings of one address on one network.
// A platform appears in at most one of BindingSocials and BoundSocials.
type VerificationsRecord struct {
	NetworkID      NetworkID `json:"networkId"`
	UserAddress    string    `json:"userAddress"`
	BindingSocials SocialMap `json:"bindingSocials"`
	BoundSocials   SocialMap `json:"boundSocials"`
	LastFetchBlock int64     `json:"lastFetchBlock"`
}

// NewVerificationsRecord returns an empty record for key.
func NewVerificationsRecord(key RecordKey) *VerificationsRecord {
	return &VerificationsRecord{
		NetworkID:      key.NetworkID,
		UserAddress:    key.UserAddress,
		BindingSocials: SocialMap{},
		BoundSocials:   SocialMap{},
		LastFetchBlock: 0,
	}
}

// Key returns the record's composite key.
func (r *VerificationsRecord) Key() RecordKey {
	return NewRecordKey(r.NetworkID, r.UserAddress)
}

// Clone returns a deep copy of the record.
func (r *VerificationsRecord) Clone() *VerificationsRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.BindingSocials = r.BindingSocials.Clone()
	c.BoundSocials = r.BoundSocials.Clone()
	return &c
}

// StartBinding records a pending binding and drops any bound entry for the platform.
func (r *VerificationsRecord) StartBinding(social BoundSocial) {
	r.ensureMaps()
	social.Status = BindingPending
	delete(r.BoundSocials, social.Platform)
	r.BindingSocials[social.Platform] = social
}

// CompleteBinding moves a platform from pending to bound, replacing any previous entry.
func (r *VerificationsRecord) CompleteBinding(social BoundSocial) {
	r.ensureMaps()
	social.Status = BindingChecked
	delete(r.BindingSocials, social.Platform)
	r.BoundSocials[social.Platform] = social
}

func (r *VerificationsRecord) ensureMaps() {
	if r.BindingSocials == nil {
		r.BindingSocials = SocialMap{}
	}
	if r.BoundSocials == nil {
		r.BoundSocials = SocialMap{}
	}
}

// VerificationsUpdate is a partial update of a VerificationsRecord.
// A nil field is left untouched; a non-nil map (even empty) replaces the stored one.
type VerificationsUpdate struct {
	BindingSocials SocialMap
	BoundSocials   SocialMap
	LastFetchBlock *int64
}

// Validate rejects updates that would break record invariants.
func (u VerificationsUpdate) Validate() error {
	if u.LastFetchBlock != nil && *u.LastFetchBlock < 0 {
		return fmt.Errorf("%w: last fetch block must be non-negative, got %d", ErrInvalidInput, *u.LastFetchBlock)
	}
	return nil
}

// Apply merges the provided fields into r.
func (u VerificationsUpdate) Apply(r *VerificationsRecord) {
	if u.BindingSocials != nil {
		r.BindingSocials = u.BindingSocials.Clone()
	}
	if u.BoundSocials != nil {
		r.BoundSocials = u.BoundSocials.Clone()
	}
	if u.LastFetchBlock != nil {
		r.LastFetchBlock = *u.LastFetchBlock
	}
}

// UpdateFromRecord builds an update that overwrites both social maps with r's.
func UpdateFromRecord(r *VerificationsRecord) VerificationsUpdate {
	return VerificationsUpdate{
		BindingSocials: r.BindingSocials.Clone(),
		BoundSocials:   r.BoundSocials.Clone(),
	}
}
