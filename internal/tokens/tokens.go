// Package tokens hands out fresh upstream credentials. OAuth-backed accounts
// refresh through their token source; static API keys pass through as-is.
package tokens

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2"
)

// Auth is what an upstream attempt needs to authenticate.
type Auth struct {
	// Token is the bearer token or API key value.
	Token string
	// AccountID identifies the account for logging and header purposes.
	AccountID string
}

// Credential is one account for one provider.
type Credential struct {
	AccountID string
	// APIKey is set for static-key accounts.
	APIKey string
	// Source is set for OAuth accounts and refreshes lazily.
	Source oauth2.TokenSource
}

// Manager owns the per-provider account lists. Account indexes returned by
// the rotation manager index into these lists.
type Manager struct {
	mu    sync.RWMutex
	creds map[string][]Credential
}

// NewManager returns an empty credential manager.
func NewManager() *Manager {
	return &Manager{creds: make(map[string][]Credential)}
}

// RegisterKey adds a static API key account.
func (m *Manager) RegisterKey(provider, accountID, apiKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[provider] = append(m.creds[provider], Credential{AccountID: accountID, APIKey: apiKey})
}

// RegisterOAuth adds an OAuth account. The token source is wrapped so a
// still-valid token is reused instead of refreshed on every call.
func (m *Manager) RegisterOAuth(provider, accountID string, src oauth2.TokenSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[provider] = append(m.creds[provider], Credential{
		AccountID: accountID,
		Source:    oauth2.ReuseTokenSource(nil, src),
	})
}

// AccountCount reports how many accounts a provider has.
func (m *Manager) AccountCount(provider string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.creds[provider])
}

// EnsureFresh returns usable credentials for the given provider account,
// refreshing the OAuth token when expired.
func (m *Manager) EnsureFresh(ctx context.Context, provider string, accountIndex int) (Auth, error) {
	m.mu.RLock()
	list := m.creds[provider]
	m.mu.RUnlock()

	if len(list) == 0 {
		return Auth{}, fmt.Errorf("tokens: no credentials for provider %s", provider)
	}
	cred := list[accountIndex%len(list)]

	if cred.Source != nil {
		if err := ctx.Err(); err != nil {
			return Auth{}, err
		}
		tok, err := cred.Source.Token()
		if err != nil {
			return Auth{}, fmt.Errorf("tokens: refresh %s account %s: %w", provider, cred.AccountID, err)
		}
		return Auth{Token: tok.AccessToken, AccountID: cred.AccountID}, nil
	}
	return Auth{Token: cred.APIKey, AccountID: cred.AccountID}, nil
}

// envKeys maps providers to the environment variables their keys live in.
var envKeys = map[string][]string{
	"openai":       {"OPENAI_API_KEY"},
	"anthropic":    {"ANTHROPIC_API_KEY"},
	"gemini":       {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"antigravity":  {"ANTIGRAVITY_ACCESS_TOKEN"},
	"openai-web":   {"CHATGPT_ACCESS_TOKEN"},
	"opencode-zen": {"OPENCODE_ZEN_API_KEY"},
}

// LoadFromEnv registers one static account per provider whose environment
// variable is set.
func (m *Manager) LoadFromEnv() {
	for provider, vars := range envKeys {
		for _, name := range vars {
			if v := os.Getenv(name); v != "" {
				m.RegisterKey(provider, "env:"+name, v)
				break
			}
		}
	}
}
