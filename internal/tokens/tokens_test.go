package tokens

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeSource struct {
	tok   *oauth2.Token
	err   error
	calls int
}

func (f *fakeSource) Token() (*oauth2.Token, error) {
	f.calls++
	return f.tok, f.err
}

func TestEnsureFreshStaticKey(t *testing.T) {
	m := NewManager()
	m.RegisterKey("openai", "acct-a", "sk-test")

	auth, err := m.EnsureFresh(context.Background(), "openai", 0)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", auth.Token)
	assert.Equal(t, "acct-a", auth.AccountID)
}

func TestEnsureFreshOAuthReusesValidToken(t *testing.T) {
	src := &fakeSource{tok: &oauth2.Token{
		AccessToken: "ya29.fresh",
		Expiry:      time.Now().Add(time.Hour),
	}}
	m := NewManager()
	m.RegisterOAuth("antigravity", "user@example.com", src)

	for i := 0; i < 3; i++ {
		auth, err := m.EnsureFresh(context.Background(), "antigravity", 0)
		require.NoError(t, err)
		assert.Equal(t, "ya29.fresh", auth.Token)
	}
	assert.Equal(t, 1, src.calls)
}

func TestEnsureFreshRefreshError(t *testing.T) {
	m := NewManager()
	m.RegisterOAuth("antigravity", "user@example.com", &fakeSource{err: errors.New("revoked")})

	_, err := m.EnsureFresh(context.Background(), "antigravity", 0)
	assert.ErrorContains(t, err, "revoked")
}

func TestEnsureFreshNoCredentials(t *testing.T) {
	m := NewManager()
	_, err := m.EnsureFresh(context.Background(), "anthropic", 0)
	assert.ErrorContains(t, err, "no credentials")
}

func TestEnsureFreshWrapsAccountIndex(t *testing.T) {
	m := NewManager()
	m.RegisterKey("openai", "a", "key-a")
	m.RegisterKey("openai", "b", "key-b")

	auth, err := m.EnsureFresh(context.Background(), "openai", 3)
	require.NoError(t, err)
	assert.Equal(t, "key-b", auth.Token)
}
