package entity

import (
	"fmt"
	"strings"
)

// PlatformIdentity is the stable platform-side identity obtained after authorization.
// Twitter needs only Username; Facebook needs UserID and AccessToken.
type PlatformIdentity struct {
	Username    string
	UserID      string
	AccessToken string
}

// Validate checks the fields required by platform.
func (p PlatformIdentity) Validate(platform Platform) error {
	switch platform {
	case PlatformTwitter:
		if strings.TrimSpace(p.Username) == "" {
			return fmt.Errorf("%w: twitter handle is required", ErrInvalidInput)
		}
	case PlatformFacebook:
		if p.UserID == "" || p.AccessToken == "" {
			return fmt.Errorf("%w: facebook user id and access token are required", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, platform)
	}
	return nil
}

// Candidate is a piece of published content that may hold a claim.
type Candidate struct {
	ID   string
	Text string
}
