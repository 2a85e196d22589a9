// Package facebook implements outbound.PlatformAdapter over the Graph API.
//
// Proving uses the user access token obtained during authorization. Re-checks
// of stored bindings use the application token "appID|appSecret", since user
// tokens expire.
package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/pkg/httpclient"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// Compile-time check that Adapter implements outbound.PlatformAdapter.
var _ outbound.PlatformAdapter = (*Adapter)(nil)

// Graph API error codes.
const (
	codeOAuthException = 190
	codePermission     = 200
	codeUnknownPath    = 803
)

// Config holds configuration for the Facebook adapter.
type Config struct {
	AppID     string
	AppSecret string

	// GraphURL is the versioned Graph API root. Defaults to https://graph.facebook.com/v2.12.
	GraphURL string

	HTTP   httpclient.Config
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		GraphURL: "https://graph.facebook.com/v2.12",
		HTTP:     httpclient.DefaultConfig(),
		Logger:   slog.Default(),
	}
}

// Adapter proves bindings against a user's public posts.
type Adapter struct {
	config Config
	client *httpclient.Client
	logger *slog.Logger
}

type post struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type postsResponse struct {
	Data []post `json:"data"`
}

type graphError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// New creates a Facebook adapter.
func New(config Config) *Adapter {
	defaults := ConfigDefaults()
	if config.GraphURL == "" {
		config.GraphURL = defaults.GraphURL
	}
	config.GraphURL = strings.TrimRight(config.GraphURL, "/")
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	logger := config.Logger.With("component", "facebook-adapter")

	return &Adapter{
		config: config,
		client: httpclient.NewClient(config.HTTP, logger, httpclient.WithErrorParser(parseGraphError)),
		logger: logger,
	}
}

// parseGraphError maps Graph API error envelopes onto the error taxonomy.
func parseGraphError(status int, body []byte) error {
	var ge graphError
	if err := json.Unmarshal(body, &ge); err != nil || ge.Error == nil {
		return nil
	}
	switch {
	case ge.Error.Code == codeOAuthException, ge.Error.Code == codePermission:
		return fmt.Errorf("%w: %s", entity.ErrUnauthorized, ge.Error.Message)
	case status == http.StatusNotFound, ge.Error.Code == codeUnknownPath:
		return fmt.Errorf("%w: %s", entity.ErrNotFound, ge.Error.Message)
	}
	return nil
}

func (a *Adapter) Platform() entity.Platform { return entity.PlatformFacebook }

func (a *Adapter) Steps() []string {
	return []string{"Authorize", "Publish a public post", "Upload informations", "Done"}
}

func (a *Adapter) BuildClaimText(claim entity.SignedClaim) string {
	return claim.Text()
}

// FetchCandidates returns the user's recent posts that carry a message.
func (a *Adapter) FetchCandidates(ctx context.Context, identity entity.PlatformIdentity) ([]entity.Candidate, error) {
	if err := identity.Validate(entity.PlatformFacebook); err != nil {
		return nil, err
	}

	query := url.Values{
		"access_token": {identity.AccessToken},
		"fields":       {"id,message"},
	}
	var resp postsResponse
	endpoint := a.config.GraphURL + "/" + url.PathEscape(identity.UserID) + "/posts"
	if err := a.client.GetJSON(ctx, endpoint, query, &resp); err != nil {
		return nil, fmt.Errorf("fetching posts of %s: %w", identity.UserID, httpclient.Classify(err))
	}

	candidates := make([]entity.Candidate, 0, len(resp.Data))
	for _, p := range resp.Data {
		if p.Message == "" {
			continue
		}
		candidates = append(candidates, entity.Candidate{ID: p.ID, Text: p.Message})
	}
	a.logger.Debug("posts fetched", "userID", identity.UserID, "posts", len(candidates))
	return candidates, nil
}

// ProofURL maps a Graph post id of the form "<uid>_<postid>" to its public URL.
func (a *Adapter) ProofURL(candidateID string, identity entity.PlatformIdentity) (string, error) {
	parts := strings.Split(candidateID, "_")
	if len(parts) != 2 || parts[1] == "" {
		return "", fmt.Errorf("%w: post id %q", entity.ErrInvalidInput, candidateID)
	}
	uid := identity.UserID
	if uid == "" {
		uid = parts[0]
	}
	return fmt.Sprintf("https://www.facebook.com/%s/posts/%s", url.PathEscape(uid), url.PathEscape(parts[1])), nil
}

// RecheckIdentity recovers the user id from the stored proof URL.
func (a *Adapter) RecheckIdentity(social entity.BoundSocial) (entity.PlatformIdentity, error) {
	if a.config.AppID == "" || a.config.AppSecret == "" {
		return entity.PlatformIdentity{}, fmt.Errorf("%w: facebook app credentials are not configured", entity.ErrInvalidInput)
	}
	u, err := url.Parse(social.ProofURL)
	if err != nil {
		return entity.PlatformIdentity{}, fmt.Errorf("%w: proof url: %v", entity.ErrInvalidInput, err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) != 3 || segments[1] != "posts" || segments[0] == "" {
		return entity.PlatformIdentity{}, fmt.Errorf("%w: proof url %q", entity.ErrInvalidInput, social.ProofURL)
	}
	return entity.PlatformIdentity{
		Username:    social.Username,
		UserID:      segments[0],
		AccessToken: a.config.AppID + "|" + a.config.AppSecret,
	}, nil
}
