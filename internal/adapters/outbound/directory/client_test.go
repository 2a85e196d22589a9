package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/pkg/httpclient"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

type recorder struct {
	mu      sync.Mutex
	paths   []string
	queries []url.Values
}

func (r *recorder) record(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, req.URL.Path)
	r.queries = append(r.queries, req.URL.Query())
}

func newTestClient(t *testing.T, rec *recorder, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{
		SearchURL: srv.URL + "/search",
		UsersURL:  srv.URL + "/users",
		HTTP: httpclient.Config{
			Timeout:        time.Second,
			MaxRetries:     1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			BackoffFactor:  2,
			RateLimit:      rate.Inf,
		},
	})
	require.NoError(t, err)
	return c
}

const aliceJSON = `[{
	"userAddress": "0x00000000000000000000000000000000000000aa",
	"username": "alice",
	"platformName": "twitter",
	"proofURL": "https://twitter.com/statuses/1",
	"twitterOAuthInfo": {"name": "Alice", "description": "hi", "profile_image_url_https": "https://pbs.twimg.com/a.png"}
}]`

func TestSearch(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, rec, http.StatusOK, aliceJSON)

	rows, err := c.Search(context.Background(), entity.NetworkRinkeby, "al ice")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, entity.PlatformTwitter, rows[0].PlatformName)
	require.NotNil(t, rows[0].TwitterOAuthInfo)
	assert.Equal(t, "Alice", rows[0].TwitterOAuthInfo.Name)

	assert.Equal(t, "/search", rec.paths[0])
	assert.Equal(t, "4", rec.queries[0].Get("networkID"))
	assert.Equal(t, "al ice", rec.queries[0].Get("usernamePrefix"))
}

func TestUsers_QueryShape(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, rec, http.StatusOK, `null`)
	ctx := context.Background()

	rows, err := c.Users(ctx, entity.NetworkMainnet, outbound.UserQuery{UserAddress: "0xaa"})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	_, err = c.Users(ctx, entity.NetworkMainnet, outbound.UserQuery{Username: "bob"})
	require.NoError(t, err)

	require.Len(t, rec.queries, 2)
	assert.Equal(t, "/users", rec.paths[0])
	assert.Equal(t, "0xaa", rec.queries[0].Get("userAddress"))
	assert.False(t, rec.queries[0].Has("username"))
	assert.Equal(t, "bob", rec.queries[1].Get("username"))
	assert.Equal(t, "1", rec.queries[1].Get("networkID"))

	_, err = c.Users(ctx, entity.NetworkMainnet, outbound.UserQuery{})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
	_, err = c.Users(ctx, entity.NetworkMainnet, outbound.UserQuery{UserAddress: "0xaa", Username: "bob"})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
	assert.Len(t, rec.queries, 2)
}

func TestFailuresAreClassified(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, rec, http.StatusBadGateway, `upstream`)

	_, err := c.Search(context.Background(), entity.NetworkMainnet, "a")
	assert.ErrorIs(t, err, entity.ErrTransientIO)
	assert.Len(t, rec.paths, 2, "server errors are retried")
}

func TestNewClient_RequiresURLs(t *testing.T) {
	_, err := NewClient(ClientConfig{SearchURL: "http://x/search"})
	assert.Error(t, err)
}
