package entity

import "time"

// BindingStatus tracks whether a binding has passed a proof check.
type BindingStatus string

const (
	BindingPending BindingStatus = "pending"
	BindingChecked BindingStatus = "checked"
)

// BoundSocial is the outcome of a proving attempt for one platform.
type BoundSocial struct {
	Platform    Platform      `json:"platform"`
	Status      BindingStatus `json:"status"`
	SignedClaim SignedClaim   `json:"signedClaim"`
	ProofURL    string        `json:"proofURL"`
	Username    string        `json:"username"`
}

// VerifyResult is the outcome of a single proof check.
type VerifyResult string

const (
	VerifyUnknown  VerifyResult = "unknown"
	VerifyValid    VerifyResult = "valid"
	VerifyInvalid  VerifyResult = "invalid"
	VerifyNotFound VerifyResult = "not_found"
)

// RecheckInterval is how long a verification result stays fresh.
const RecheckInterval = 24 * time.Hour

// VerifyStatus records the last proof check result for a binding.
type VerifyStatus struct {
	Status         VerifyResult `json:"status"`
	LastVerifiedAt time.Time    `json:"lastVerifiedAt"`
}

// NewVerifyStatus stamps a check result with the time it was observed.
func NewVerifyStatus(result VerifyResult, at time.Time) VerifyStatus {
	return VerifyStatus{Status: result, LastVerifiedAt: at.UTC()}
}

// NeedsRecheck reports whether the status was never checked or is older than RecheckInterval.
func (s VerifyStatus) NeedsRecheck(now time.Time) bool {
	if s.Status == "" || s.Status == VerifyUnknown || s.LastVerifiedAt.IsZero() {
		return true
	}
	return now.Sub(s.LastVerifiedAt) > RecheckInterval
}
