package facebook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/pkg/httpclient"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		AppID:     "app",
		AppSecret: "shh",
		GraphURL:  srv.URL + "/v2.12/",
		HTTP:      httpclient.Config{RateLimit: rate.Inf},
	})
}

func TestFetchCandidates_SkipsPostsWithoutMessage(t *testing.T) {
	var lastPath atomic.Value
	var lastQuery atomic.Value
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		lastPath.Store(r.URL.Path)
		lastQuery.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"42_1","message":"first"},
			{"id":"42_2","story":"changed their profile picture"},
			{"id":"42_3","message":"Keymail\naddr: 0xabc"}
		]}`))
	})

	candidates, err := a.FetchCandidates(context.Background(), entity.PlatformIdentity{UserID: "42", AccessToken: "user-token"})
	require.NoError(t, err)
	assert.Equal(t, []entity.Candidate{
		{ID: "42_1", Text: "first"},
		{ID: "42_3", Text: "Keymail\naddr: 0xabc"},
	}, candidates)

	assert.Equal(t, "/v2.12/42/posts", lastPath.Load())
	q := lastQuery.Load().(url.Values)
	assert.Equal(t, "user-token", q.Get("access_token"))
	assert.Equal(t, "id,message", q.Get("fields"))
}

func TestFetchCandidates_GraphErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "expired token",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"Error validating access token","type":"OAuthException","code":190}}`,
			want:   entity.ErrUnauthorized,
		},
		{
			name:   "missing permission",
			status: http.StatusForbidden,
			body:   `{"error":{"message":"Permissions error","type":"OAuthException","code":200}}`,
			want:   entity.ErrUnauthorized,
		},
		{
			name:   "unknown user",
			status: http.StatusNotFound,
			body:   `{"error":{"message":"Unsupported get request","type":"GraphMethodException","code":803}}`,
			want:   entity.ErrNotFound,
		},
		{
			name:   "unrecognised envelope",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"Something else","code":1}}`,
			want:   entity.ErrTransientIO,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := a.FetchCandidates(context.Background(), entity.PlatformIdentity{UserID: "42", AccessToken: "t"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchCandidates_RequiresToken(t *testing.T) {
	var calls atomic.Int32
	a := newTestAdapter(t, func(http.ResponseWriter, *http.Request) { calls.Add(1) })

	_, err := a.FetchCandidates(context.Background(), entity.PlatformIdentity{UserID: "42"})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
	assert.Equal(t, int32(0), calls.Load())
}

func TestProofURL(t *testing.T) {
	a := New(Config{})

	u, err := a.ProofURL("42_1001", entity.PlatformIdentity{UserID: "42"})
	require.NoError(t, err)
	assert.Equal(t, "https://www.facebook.com/42/posts/1001", u)

	u, err = a.ProofURL("42_1001", entity.PlatformIdentity{})
	require.NoError(t, err)
	assert.Equal(t, "https://www.facebook.com/42/posts/1001", u)

	for _, bad := range []string{"1001", "42_", "42_1_2"} {
		_, err = a.ProofURL(bad, entity.PlatformIdentity{UserID: "42"})
		assert.ErrorIs(t, err, entity.ErrInvalidInput, bad)
	}
}

func TestRecheckIdentity(t *testing.T) {
	a := New(Config{AppID: "app", AppSecret: "shh"})

	id, err := a.RecheckIdentity(entity.BoundSocial{
		Username: "Alice",
		ProofURL: "https://www.facebook.com/42/posts/1001",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.PlatformIdentity{Username: "Alice", UserID: "42", AccessToken: "app|shh"}, id)

	_, err = a.RecheckIdentity(entity.BoundSocial{ProofURL: "https://www.facebook.com/42"})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)

	_, err = New(Config{}).RecheckIdentity(entity.BoundSocial{ProofURL: "https://www.facebook.com/42/posts/1001"})
	assert.ErrorIs(t, err, entity.ErrInvalidInput, "app credentials are required")
}

func TestSteps(t *testing.T) {
	a := New(Config{})
	assert.Equal(t, entity.PlatformFacebook, a.Platform())
	assert.Equal(t, "Authorize", a.Steps()[0])
	assert.Len(t, a.Steps(), 4)
}
