package outbound

import (
	"context"

	"github.com/keymesh/socialproof/internal/domain/entity"
)

// PlatformAdapter is the per-platform capability used by the proving flow.
type PlatformAdapter interface {
	// Platform identifies the platform this adapter serves.
	Platform() entity.Platform

	// Steps returns the ordered step labels shown while proving.
	Steps() []string

	// BuildClaimText renders the exact text the user must publish.
	BuildClaimText(claim entity.SignedClaim) string

	// FetchCandidates returns recent public content published by identity.
	// Content that cannot carry a claim is filtered out.
	FetchCandidates(ctx context.Context, identity entity.PlatformIdentity) ([]entity.Candidate, error)

	// ProofURL returns the public URL of a candidate.
	ProofURL(candidateID string, identity entity.PlatformIdentity) (string, error)

	// RecheckIdentity derives the identity used to re-fetch content for a stored binding.
	RecheckIdentity(social entity.BoundSocial) (entity.PlatformIdentity, error)
}
