// Package twitter implements outbound.PlatformAdapter for Twitter timelines.
//
// Requests authenticate with an application-only bearer token obtained through
// the OAuth2 client-credentials grant. Without consumer keys the adapter falls
// back to unauthenticated requests, which is only useful against test servers.
package twitter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/pkg/httpclient"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// Compile-time check that Adapter implements outbound.PlatformAdapter.
var _ outbound.PlatformAdapter = (*Adapter)(nil)

var tweetID = regexp.MustCompile(`^[0-9]+$`)

// Config holds configuration for the Twitter adapter.
type Config struct {
	// ConsumerKey and ConsumerSecret are the application credentials.
	ConsumerKey    string
	ConsumerSecret string

	// BaseURL is the REST API root. Defaults to https://api.twitter.com.
	BaseURL string

	// TokenURL defaults to BaseURL + /oauth2/token.
	TokenURL string

	// TimelineCount is how many recent tweets are scanned. Defaults to 200.
	TimelineCount int

	HTTP   httpclient.Config
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		BaseURL:       "https://api.twitter.com",
		TimelineCount: 200,
		HTTP:          httpclient.DefaultConfig(),
		Logger:        slog.Default(),
	}
}

// Adapter proves bindings against a user's public timeline.
type Adapter struct {
	config Config
	client *httpclient.Client
	logger *slog.Logger
}

type tweet struct {
	IDStr    string `json:"id_str"`
	FullText string `json:"full_text"`
}

// New creates a Twitter adapter.
func New(config Config) *Adapter {
	defaults := ConfigDefaults()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.TokenURL == "" {
		config.TokenURL = config.BaseURL + "/oauth2/token"
	}
	if config.TimelineCount <= 0 {
		config.TimelineCount = defaults.TimelineCount
	}
	if config.HTTP.Timeout <= 0 {
		config.HTTP.Timeout = defaults.HTTP.Timeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	logger := config.Logger.With("component", "twitter-adapter")

	var opts []httpclient.Option
	if config.ConsumerKey != "" && config.ConsumerSecret != "" {
		cc := clientcredentials.Config{
			ClientID:     config.ConsumerKey,
			ClientSecret: config.ConsumerSecret,
			TokenURL:     config.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		base := &http.Client{Timeout: config.HTTP.Timeout}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		hc := cc.Client(ctx)
		hc.Timeout = config.HTTP.Timeout
		opts = append(opts, httpclient.WithHTTPClient(hc))
	} else {
		logger.Warn("no consumer keys configured, timeline requests are unauthenticated")
	}

	return &Adapter{
		config: config,
		client: httpclient.NewClient(config.HTTP, logger, opts...),
		logger: logger,
	}
}

func (a *Adapter) Platform() entity.Platform { return entity.PlatformTwitter }

func (a *Adapter) Steps() []string {
	return []string{"Fetch user info", "Tweet", "Upload informations", "Done"}
}

func (a *Adapter) BuildClaimText(claim entity.SignedClaim) string {
	return claim.Text()
}

// FetchCandidates returns the user's recent original tweets.
func (a *Adapter) FetchCandidates(ctx context.Context, identity entity.PlatformIdentity) ([]entity.Candidate, error) {
	if err := identity.Validate(entity.PlatformTwitter); err != nil {
		return nil, err
	}
	screenName := strings.TrimPrefix(strings.TrimSpace(identity.Username), "@")

	query := url.Values{
		"screen_name": {screenName},
		"tweet_mode":  {"extended"},
		"count":       {fmt.Sprintf("%d", a.config.TimelineCount)},
		"include_rts": {"false"},
	}

	start := time.Now()
	var tweets []tweet
	if err := a.client.GetJSON(ctx, a.config.BaseURL+"/1.1/statuses/user_timeline.json", query, &tweets); err != nil {
		return nil, fmt.Errorf("fetching timeline of %s: %w", screenName, httpclient.Classify(err))
	}

	candidates := make([]entity.Candidate, 0, len(tweets))
	for _, t := range tweets {
		if t.IDStr == "" {
			continue
		}
		candidates = append(candidates, entity.Candidate{ID: t.IDStr, Text: t.FullText})
	}
	a.logger.Debug("timeline fetched",
		"screenName", screenName,
		"tweets", len(candidates),
		"duration", time.Since(start))
	return candidates, nil
}

func (a *Adapter) ProofURL(candidateID string, _ entity.PlatformIdentity) (string, error) {
	if !tweetID.MatchString(candidateID) {
		return "", fmt.Errorf("%w: tweet id %q", entity.ErrInvalidInput, candidateID)
	}
	return "https://twitter.com/statuses/" + candidateID, nil
}

func (a *Adapter) RecheckIdentity(social entity.BoundSocial) (entity.PlatformIdentity, error) {
	identity := entity.PlatformIdentity{Username: social.Username}
	if err := identity.Validate(entity.PlatformTwitter); err != nil {
		return entity.PlatformIdentity{}, err
	}
	return identity, nil
}
