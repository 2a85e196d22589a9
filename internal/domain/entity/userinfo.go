package entity

// TwitterOAuthInfo is the subset of a Twitter profile returned by the directory.
type TwitterOAuthInfo struct {
	Name                 string `json:"name"`
	Description          string `json:"description"`
	ProfileImageURLHTTPS string `json:"profile_image_url_https"`
	FriendsCount         int    `json:"friends_count"`
	FollowersCount       int    `json:"followers_count"`
}

// RawUserInfo is one per-platform row returned by the directory service.
type RawUserInfo struct {
	UserAddress      string            `json:"userAddress"`
	Username         string            `json:"username"`
	PlatformName     Platform          `json:"platformName"`
	ProofURL         string            `json:"proofURL"`
	TwitterOAuthInfo *TwitterOAuthInfo `json:"twitterOAuthInfo,omitempty"`
	GravatarHash     string            `json:"gravatarHash,omitempty"`
}

// ProfileVerification is one platform entry of an aggregated profile.
type ProfileVerification struct {
	PlatformName Platform          `json:"platformName"`
	Username     string            `json:"username"`
	Info         *TwitterOAuthInfo `json:"info,omitempty"`
}

// Profile is the aggregated view of all directory rows for one address.
// Empty strings mean the field was never set.
type Profile struct {
	UserAddress     string                `json:"userAddress"`
	Verifications   []ProfileVerification `json:"verifications"`
	DisplayUsername string                `json:"displayUsername,omitempty"`
	Description     string                `json:"description,omitempty"`
	AvatarImgURL    string                `json:"avatarImgURL,omitempty"`
}
