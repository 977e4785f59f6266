package state

import (
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"solare/internal/domain/identity"
)

// IdentityProvider resolves the current actor: the signed-in user, or the
// anonymous device token stored under KeySessionID. The token is created once
// per profile and never rotated.
type IdentityProvider struct {
	local LocalStore
	auth  *AuthState

	mu        sync.Mutex
	sessionID string
}

func NewIdentityProvider(local LocalStore, auth *AuthState) *IdentityProvider {
	return &IdentityProvider{local: local, auth: auth}
}

// AnonymousSessionID returns the profile's anonymous token, creating it on first use.
// If local storage is unusable the token lives in memory for this instance only.
func (p *IdentityProvider) AnonymousSessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sessionID != "" {
		return p.sessionID
	}

	if id := p.readStored(); id != "" {
		p.sessionID = id
		return id
	}

	id := uuid.NewString()
	if p.local != nil {
		raw, _ := json.Marshal(id)
		if err := p.local.Set(KeySessionID, raw); err != nil {
			log.Printf("[state.identity] WARN: persist anonymous session id failed: %v", err)
		}
	}
	p.sessionID = id
	return id
}

// readStored accepts both the JSON-encoded form and a legacy bare string.
func (p *IdentityProvider) readStored() string {
	if p.local == nil {
		return ""
	}
	raw, ok, err := p.local.Get(KeySessionID)
	if err != nil {
		log.Printf("[state.identity] WARN: read anonymous session id failed: %v", err)
		return ""
	}
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

// Current returns the user context when signed in, otherwise the anonymous one.
func (p *IdentityProvider) Current() identity.Context {
	if p.auth != nil {
		if u := p.auth.GetUser(); u != nil {
			return identity.ForUser(u.ID)
		}
	}
	return identity.ForAnonymous(p.AnonymousSessionID())
}
