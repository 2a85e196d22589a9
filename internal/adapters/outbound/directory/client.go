// Package directory implements outbound.DirectoryClient against the user
// directory HTTP service, which indexes bound socials per network.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/pkg/httpclient"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// Compile-time check that Client implements outbound.DirectoryClient.
var _ outbound.DirectoryClient = (*Client)(nil)

// ClientConfig holds configuration for the directory client.
type ClientConfig struct {
	// SearchURL serves prefix search, e.g. https://directory.example/search.
	SearchURL string

	// UsersURL serves lookups by address or username, e.g. https://directory.example/users.
	UsersURL string

	HTTP   httpclient.Config
	Logger *slog.Logger
}

// Client queries the user directory.
type Client struct {
	config ClientConfig
	http   *httpclient.Client
	logger *slog.Logger
}

// NewClient creates a directory client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.SearchURL == "" || config.UsersURL == "" {
		return nil, errors.New("SearchURL and UsersURL are required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "directory-client")
	return &Client{
		config: config,
		http:   httpclient.NewClient(config.HTTP, logger),
		logger: logger,
	}, nil
}

// Search returns rows whose username starts with prefix.
func (c *Client) Search(ctx context.Context, networkID entity.NetworkID, prefix string) ([]entity.RawUserInfo, error) {
	query := url.Values{
		"networkID":      {strconv.Itoa(int(networkID))},
		"usernamePrefix": {prefix},
	}
	rows, err := c.fetch(ctx, c.config.SearchURL, query)
	if err != nil {
		return nil, fmt.Errorf("searching users by prefix %q: %w", prefix, err)
	}
	return rows, nil
}

// Users returns rows matching q. Exactly one of its fields must be set.
func (c *Client) Users(ctx context.Context, networkID entity.NetworkID, q outbound.UserQuery) ([]entity.RawUserInfo, error) {
	query := url.Values{"networkID": {strconv.Itoa(int(networkID))}}
	switch {
	case q.UserAddress != "" && q.Username == "":
		query.Set("userAddress", q.UserAddress)
	case q.Username != "" && q.UserAddress == "":
		query.Set("username", q.Username)
	default:
		return nil, fmt.Errorf("%w: exactly one of userAddress and username is required", entity.ErrInvalidInput)
	}

	rows, err := c.fetch(ctx, c.config.UsersURL, query)
	if err != nil {
		return nil, fmt.Errorf("fetching users: %w", err)
	}
	return rows, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string, query url.Values) ([]entity.RawUserInfo, error) {
	var rows []entity.RawUserInfo
	if err := c.http.GetJSON(ctx, endpoint, query, &rows); err != nil {
		return nil, httpclient.Classify(err)
	}
	if rows == nil {
		rows = []entity.RawUserInfo{}
	}
	c.logger.Debug("directory rows fetched", "endpoint", endpoint, "rows", len(rows))
	return rows, nil
}
